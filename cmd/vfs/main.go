// Command vfs is an interactive shell over a FAT-style virtual filesystem
// container, the Go-native rebuild of the original vfs.c teaching tool:
// argv parsing is hand-written for the same reason the original's
// parse_argv is, since the concatenated "-b256"/"-f8" short-flag-with-value
// form isn't expressible with the standard flag package.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"

	"github.com/diskfs/vfs/internal/backup"
	"github.com/diskfs/vfs/internal/image"
	"github.com/diskfs/vfs/internal/vfs"
)

const usage = "Usage: vfs [-b[128|256|512|1024]] [-f[7|8|9|10]] [-snapshot=PATH] FILESYSTEM\n"

type options struct {
	blockSize    int
	fatClass     int
	snapshotPath string
	imagePath    string
}

func parseArgv(argv []string) (options, error) {
	opt := options{blockSize: 256, fatClass: 8}
	if len(argv) < 1 || len(argv) > 4 {
		return opt, fmt.Errorf("invalid number of arguments")
	}
	for _, a := range argv[:len(argv)-1] {
		switch {
		case strings.HasPrefix(a, "-b"):
			n, err := strconv.Atoi(a[2:])
			if err != nil || (n != 128 && n != 256 && n != 512 && n != 1024) {
				return opt, fmt.Errorf("invalid block size (%s)", a[2:])
			}
			opt.blockSize = n
		case strings.HasPrefix(a, "-f"):
			n, err := strconv.Atoi(a[2:])
			if err != nil || (n != 7 && n != 8 && n != 9 && n != 10) {
				return opt, fmt.Errorf("invalid fat type (%s)", a[2:])
			}
			opt.fatClass = n
		case strings.HasPrefix(a, "-snapshot="):
			opt.snapshotPath = a[len("-snapshot="):]
		default:
			return opt, fmt.Errorf("invalid argument (%s)", a)
		}
	}
	opt.imagePath = argv[len(argv)-1]
	return opt, nil
}

func main() {
	opt, err := parseArgv(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "vfs: %s\n", err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	log := logrus.WithField("session", uuid.New().String())

	c, created, err := image.Open(opt.imagePath, opt.blockSize, opt.fatClass)
	if err != nil {
		log.WithFields(logrus.Fields{
			"path": opt.imagePath, "blockSize": opt.blockSize, "fatClass": opt.fatClass,
		}).WithError(err).Error("cannot open filesystem")
		switch err.(type) {
		case *image.UsageError:
			fmt.Fprintf(os.Stderr, "vfs: %s\n", err)
			fmt.Fprint(os.Stderr, usage)
		default:
			fmt.Fprintf(os.Stderr, "vfs: %s\n", err)
		}
		os.Exit(1)
	}
	defer c.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.WithField("signal", s).Warn("interrupted, flushing image before exit")
		c.Close()
		os.Exit(130)
	}()

	if created {
		log.WithFields(logrus.Fields{
			"path": opt.imagePath, "blockSize": opt.blockSize, "fatClass": opt.fatClass,
		}).Info("formatted new filesystem")
	}

	if opt.snapshotPath != "" {
		if err := backup.Snapshot(opt.snapshotPath, c.Snapshot()); err != nil {
			log.WithError(err).Warn("could not write startup snapshot")
			fmt.Fprintf(os.Stderr, "vfs: could not write snapshot: %s\n", err)
		} else {
			log.WithField("snapshot", opt.snapshotPath).Info("wrote startup snapshot")
		}
	}

	v := vfs.Open(c, created)
	runShell(v, log)
}

func runShell(v *vfs.VFS, log *logrus.Entry) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	historyPath := filepath.Join(home, ".vfs_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	for {
		input, err := line.Prompt("vfs$ ")
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				break
			}
			log.WithError(err).Error("prompt read failed")
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		if exit := dispatch(v, input, log); exit {
			break
		}
	}

	if f, err := os.Create(historyPath); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

// dispatch parses one input line into a command name and argument vector,
// validates its argument count, and invokes the matching vfs operation.
// Returns true when the shell should terminate.
func dispatch(v *vfs.VFS, input string, log *logrus.Entry) bool {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]

	report := func(err error) {
		if err == nil {
			return
		}
		fmt.Printf("ERROR(%s)\n", err)
		log.WithField("cmd", cmd).WithError(err).Warn("command failed")
	}
	argErr := func(msg string) {
		fmt.Printf("ERROR(input: '%s' - %s)\n", cmd, msg)
	}

	switch cmd {
	case "exit":
		return true

	case "ls":
		if len(args) > 0 {
			argErr("too many arguments")
			return false
		}
		for _, l := range v.List() {
			fmt.Println(l)
		}

	case "mkdir":
		if len(args) < 1 {
			argErr("too few arguments")
		} else if len(args) > 1 {
			argErr("too many arguments")
		} else {
			report(v.MakeDir(args[0]))
		}

	case "cd":
		if len(args) < 1 {
			argErr("too few arguments")
		} else if len(args) > 1 {
			argErr("too many arguments")
		} else {
			report(v.ChangeDir(args[0]))
		}

	case "pwd":
		if len(args) > 0 {
			argErr("too many arguments")
		} else {
			fmt.Println(v.PrintWorkingDir())
		}

	case "rmdir":
		if len(args) < 1 {
			argErr("too few arguments")
		} else if len(args) > 1 {
			argErr("too many arguments")
		} else {
			report(v.RemoveDir(args[0]))
		}

	case "get":
		if len(args) < 2 {
			argErr("too few arguments")
		} else if len(args) > 2 {
			argErr("too many arguments")
		} else {
			report(v.Ingest(args[0], args[1]))
		}

	case "put":
		if len(args) < 2 {
			argErr("too few arguments")
		} else if len(args) > 2 {
			argErr("too many arguments")
		} else {
			report(v.Egress(args[0], args[1]))
		}

	case "cat":
		if len(args) < 1 {
			argErr("too few arguments")
		} else if len(args) > 1 {
			argErr("too many arguments")
		} else {
			w := bufio.NewWriter(os.Stdout)
			err := v.Cat(args[0], w)
			w.Flush()
			report(err)
		}

	case "cp":
		if len(args) < 2 {
			argErr("too few arguments")
		} else if len(args) > 2 {
			argErr("too many arguments")
		} else {
			report(v.Copy(args[0], args[1]))
		}

	case "mv":
		if len(args) < 2 {
			argErr("too few arguments")
		} else if len(args) > 2 {
			argErr("too many arguments")
		} else {
			report(v.Move(args[0], args[1]))
		}

	case "rm":
		if len(args) < 1 {
			argErr("too few arguments")
		} else if len(args) > 1 {
			argErr("too many arguments")
		} else {
			report(v.RemoveFile(args[0]))
		}

	default:
		fmt.Println("ERROR(input: command not found)")
	}

	return false
}
