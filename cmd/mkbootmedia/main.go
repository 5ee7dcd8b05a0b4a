// Command mkbootmedia turns an ISO image into bootable USB media: it
// analyzes the image, picks a burn strategy, partitions and formats
// the target device, and installs the matching bootloader.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bgrewell/usage"
	"github.com/fatih/color"
	"github.com/theckman/yacspin"
	"golang.org/x/term"

	"github.com/JeckAsChristopher/MyISO/pkg/analyzer"
	"github.com/JeckAsChristopher/MyISO/pkg/device"
	"github.com/JeckAsChristopher/MyISO/pkg/fskind"
	"github.com/JeckAsChristopher/MyISO/pkg/fswriter"
	"github.com/JeckAsChristopher/MyISO/pkg/logging"
	"github.com/JeckAsChristopher/MyISO/pkg/option"
	"github.com/JeckAsChristopher/MyISO/pkg/orchestrator"
)

var version = "dev"

func isPartitionDevice(path string) bool {
	if path == "" {
		return false
	}
	last := path[len(path)-1]
	return last >= '0' && last <= '9'
}

func baseDevice(path string) string {
	i := len(path)
	for i > 0 && path[i-1] >= '0' && path[i-1] <= '9' {
		i--
	}
	return path[:i]
}

func confirmDestructive(devicePath string, force bool) bool {
	if force {
		color.Yellow("Proceeding with --force, skipping confirmation")
		return true
	}
	color.Yellow("\nWARNING: All data on %s will be destroyed!", devicePath)
	fmt.Print("Continue? (yes/no): ")

	reader := bufio.NewReader(os.Stdin)
	answer, _ := reader.ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

// truncateString shortens input to maxLength, prefixing "..." when it
// had to cut, mirroring the progress-callback helper from isoextract.
func truncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	if maxLength <= 3 {
		return input[len(input)-maxLength:]
	}
	return "..." + input[len(input)-(maxLength-3):]
}

// burnProgress returns a callback that keeps the spinner's message
// updated with a percentage, truncated to fit the current terminal width.
func burnProgress(spinner *yacspin.Spinner) func(string, int64, int64, int, int) {
	return func(name string, transferred, total int64, fileNum, fileCount int) {
		if spinner == nil || total == 0 {
			return
		}
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}
		percent := float64(transferred) / float64(total) * 100
		suffix := fmt.Sprintf(" - %.1f%%", percent)
		available := width - len(suffix) - 6
		if available < 10 {
			available = 10
		}
		spinner.Message(truncateString(name, available) + suffix)
	}
}

func newSpinner(message string) *yacspin.Spinner {
	cfg := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopCharacter:     "✓",
		StopFailCharacter: "✗",
	}
	spinner, err := yacspin.New(cfg)
	if err != nil {
		return nil
	}
	spinner.Message(message)
	return spinner
}

func main() {
	u := usage.NewUsage()
	isoPath := u.AddStringOption("i", "iso", "", "Path to the input ISO image", "required", nil)
	devicePath := u.AddStringOption("o", "device", "", "Target block device (e.g. /dev/sdb)", "required", nil)
	persistSize := u.AddStringOption("p", "persistence", "", "Enable persistence with size in MB", "optional", nil)
	persistFS := u.AddStringOption("f", "fs", "ext4", "Filesystem for persistence (ext4, ntfs, exfat, fat32, fat64)", "optional", nil)
	label := u.AddStringOption("l", "label", "", "Volume label for the persistence filesystem", "optional", nil)
	fast := u.AddBooleanOption("m", "fast", false, "Use zero-copy fast burn mode", "optional", nil)
	force := u.AddBooleanOption("F", "force", false, "Skip the destructive-operation confirmation prompt", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Enable debug logging", "optional", nil)
	showVersion := u.AddBooleanOption("V", "version", false, "Show version information", "optional", nil)
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)

	parsed := u.Parse()
	if *help {
		u.PrintUsage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println("mkbootmedia " + version)
		os.Exit(0)
	}
	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *isoPath == "" || *devicePath == "" {
		u.PrintError(fmt.Errorf("both --iso and --device are required"))
		os.Exit(1)
	}

	level := logging.LEVEL_INFO
	if *verbose {
		level = logging.LEVEL_DEBUG
	}
	logger := logging.NewLogger(logging.NewSimpleLogger(os.Stdout, level, true))

	if isPartitionDevice(*devicePath) {
		base := baseDevice(*devicePath)
		color.Red("Fatal: %s looks like a partition, not a whole disk", *devicePath)
		color.Green("Try instead: %s", base)
		os.Exit(1)
	}

	if err := device.Validate(*devicePath); err != nil {
		logger.Error(err, "invalid target device")
		os.Exit(1)
	}

	opts := option.DefaultOrchestratorOptions()
	opts.Logger = logger
	opts.FastMode = *fast

	if *persistSize != "" {
		sizeMB, err := strconv.ParseUint(*persistSize, 10, 64)
		if err != nil {
			u.PrintError(fmt.Errorf("invalid persistence size %q: %w", *persistSize, err))
			os.Exit(1)
		}
		fsKind := fskind.Parse(*persistFS)
		if !fskind.Supported(fsKind) {
			u.PrintError(fmt.Errorf("unsupported persistence filesystem %q (supported: ext4, ntfs, exfat, fat32, fat64)", *persistFS))
			os.Exit(1)
		}
		opts.Persistence = true
		opts.PersistenceSizeMB = sizeMB
		opts.PersistenceFS = fsKind
		if *label != "" {
			opts.PersistenceLabel = *label
		}
	}

	fp, err := analyzer.Analyze(*isoPath, logger)
	if err != nil {
		logger.Error(err, "failed to analyze ISO")
		os.Exit(1)
	}
	logger.Info("ISO analyzed", "type", fp.BootType, "sizeMB", fp.ISODataSize/(1024*1024))

	if !confirmDestructive(*devicePath, *force) {
		logger.Info("operation cancelled by user")
		os.Exit(0)
	}

	cfg := orchestrator.Config{
		ISOPath:    *isoPath,
		DevicePath: *devicePath,
		Options:    opts,
		Mounter:    device.ExecMounter{},
		Rescanner:  device.ExecRescanner{},
		Formatter:  fswriter.ExecFormatter{},
	}

	spinner := newSpinner("burning " + *isoPath + " to " + *devicePath)
	if spinner != nil {
		_ = spinner.Start()
	}
	cfg.Progress = burnProgress(spinner)

	result, err := orchestrator.Run(cfg)

	if err != nil {
		if spinner != nil {
			spinner.StopFailMessage(err.Error())
			_ = spinner.StopFail()
		}
		logger.Error(err, "failed to create bootable media")
		os.Exit(1)
	}

	if spinner != nil {
		spinner.StopMessage(fmt.Sprintf("done (%s strategy)", result.Strategy))
		_ = spinner.Stop()
	}

	color.Green("\n✓ Bootable media created successfully on %s", *devicePath)
	if result.PersistenceAdded {
		color.Green("  Persistence volume added")
	}
	logger.Info("you can now safely remove the device", "device", *devicePath)
}
