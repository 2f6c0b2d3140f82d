package whisper

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// OutputFormat selects an extra transcript file whisper.cpp writes next to
// the input audio.
type OutputFormat string

const (
	OutputText OutputFormat = "txt"
	OutputSRT  OutputFormat = "srt"
	OutputVTT  OutputFormat = "vtt"
)

// simplifiedChinesePrompt nudges the model towards simplified characters; the
// engine itself only knows the generic "zh" code.
const simplifiedChinesePrompt = " 简体中文"

// Options are the per-run transcription flags.
type Options struct {
	Language      string
	Prompt        string
	OutputFormats []OutputFormat
	MaxLen        int // 0 leaves the engine default
}

// ModelSelection picks the model file and the accelerated build to run it with.
type ModelSelection struct {
	ModelPath     string
	GPUEnabled    bool
	CoreMLEnabled bool
}

// Command is a fully resolved engine invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment
}

// String renders the command the way it would be typed into a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	parts = append(parts, c.Env...)
	parts = append(parts, shellQuote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$`") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`").Replace(s) + `"`
}

// executable is one entry of the build table.
type executable struct {
	path string
	dir  string
	env  []string
}

// CommandBuilder turns options into engine commands. The executable for each
// acceleration mode is resolved once when the builder is created.
type CommandBuilder struct {
	platform    PlatformCapabilities
	generic     executable
	accelerated executable
}

// NewCommandBuilder resolves the whisper.cpp build layout under root for the
// given platform. A relative root is resolved against the current directory
// because the engine runs from its own bin directory.
func NewCommandBuilder(root string, platform PlatformCapabilities) *CommandBuilder {
	b := &CommandBuilder{platform: platform}
	root = absPath(root)

	if platform.IsWindows() {
		b.generic = windowsExecutable(filepath.Join(root, "build-win32-x64", "bin", "Release"))
		b.accelerated = windowsExecutable(filepath.Join(root, "build-win32-x64-gpu", "bin", "Release"))
		return b
	}

	base := "build-" + platform.buildPlatform() + "-" + platform.buildArch()
	b.generic = posixExecutable(filepath.Join(root, base, "bin"))
	b.accelerated = posixExecutable(filepath.Join(root, base+"-coreml", "bin"))
	return b
}

func windowsExecutable(binDir string) executable {
	return executable{path: filepath.Join(binDir, "main.exe"), dir: binDir}
}

func posixExecutable(binDir string) executable {
	return executable{
		path: filepath.Join(binDir, "main"),
		dir:  binDir,
		env:  []string{"DYLD_LIBRARY_PATH=" + binDir + string(filepath.Separator) + ".." + string(filepath.Separator)},
	}
}

// Platform returns the platform the builder was resolved for.
func (b *CommandBuilder) Platform() PlatformCapabilities {
	return b.platform
}

// selectExecutable applies the acceleration table: the GPU flag only counts on
// Windows, the CoreML flag only elsewhere.
func (b *CommandBuilder) selectExecutable(model ModelSelection) executable {
	accel := model.CoreMLEnabled
	if b.platform.IsWindows() {
		accel = model.GPUEnabled
	}
	if accel {
		return b.accelerated
	}
	return b.generic
}

// Build returns the command that transcribes filePath with model and opts.
func (b *CommandBuilder) Build(filePath string, model ModelSelection, opts Options) Command {
	exe := b.selectExecutable(model)

	args := Flags(opts)
	args = append(args, "-m", absPath(model.ModelPath), "-f", absPath(filePath))

	return Command{
		Path: exe.path,
		Args: args,
		Dir:  exe.dir,
		Env:  append([]string(nil), exe.env...),
	}
}

// absPath makes p absolute so it survives the change of working directory.
// Empty stays empty; if the current directory is unknown p is only cleaned.
func absPath(p string) string {
	if p == "" {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}

// ResolveLanguage applies the Chinese variant aliases and returns the language
// and prompt actually passed to the engine.
func ResolveLanguage(language, prompt string) (string, string) {
	switch language {
	case "zh_CN":
		return "zh", prompt + simplifiedChinesePrompt
	case "zh_TW":
		return "zh", prompt
	default:
		return language, prompt
	}
}

// Flags renders the option flags, excluding model and input.
func Flags(opts Options) []string {
	var args []string

	lang, prompt := ResolveLanguage(opts.Language, opts.Prompt)
	if lang != "" {
		args = append(args, "-l", lang)
	}
	if prompt != "" {
		args = append(args, "--prompt", prompt)
	}

	for _, f := range []OutputFormat{OutputText, OutputSRT, OutputVTT} {
		if hasFormat(opts.OutputFormats, f) {
			args = append(args, "-o"+string(f))
		}
	}

	if opts.MaxLen > 0 {
		args = append(args, "-ml", strconv.Itoa(opts.MaxLen))
	}
	return args
}

func hasFormat(formats []OutputFormat, f OutputFormat) bool {
	for _, x := range formats {
		if x == f {
			return true
		}
	}
	return false
}

// ParseOutputFormats parses a comma separated list such as "txt,srt".
// Unknown names are returned as an error.
func ParseOutputFormats(raw string) ([]OutputFormat, error) {
	var out []OutputFormat
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		switch OutputFormat(p) {
		case "":
			continue
		case OutputText, OutputSRT, OutputVTT:
			out = append(out, OutputFormat(p))
		default:
			return nil, fmt.Errorf("unknown output format %q", p)
		}
	}
	return out, nil
}
