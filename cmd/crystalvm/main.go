// Command crystalvm loads and runs a compiled Crystal bytecode image.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Luminiscental/Crystal/config"
	"github.com/Luminiscental/Crystal/crystaldbg"
	"github.com/Luminiscental/Crystal/vm"
)

func main() {
	var (
		configPath = flag.String("c", "", "path to a crystalvm.toml configuration file")
		disasm     = flag.Bool("d", false, "print disassembly instead of running the image")
		trace      = flag.Bool("t", false, "trace each instruction to stderr")
		snapshot   = flag.String("snapshot", "", "write a CBOR snapshot to this path after a failed run")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: crystalvm [flags] <image>")
		os.Exit(2)
	}

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("crystalvm: %v", err)
	}

	if *disasm {
		text, err := crystaldbg.Disassemble(flag.Arg(0), image)
		if err != nil {
			log.Fatalf("crystalvm: %v", err)
		}
		fmt.Println(text)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("crystalvm: %v", err)
		}
	}

	runID := uuid.New()
	opts := []vm.Option{
		vm.WithStackMax(cfg.StackMax),
		vm.WithGlobalMax(cfg.GlobalMax),
		vm.WithMaxFrames(cfg.MaxFrames),
	}
	if *trace || cfg.Trace {
		opts = append(opts, vm.WithTrace(func(m *vm.VM, ip int, op byte) {
			fmt.Fprintf(os.Stderr, "[%s] ip=%04x op=%02x\n", runID, ip, op)
		}))
	}

	machine := vm.New(opts...)
	defer machine.Close()

	runErr := machine.Execute(image)
	if runErr != nil {
		log.Printf("crystalvm: run %s failed: %v", runID, runErr)
		if *snapshot != "" {
			snap := machine.Snapshot()
			encoded, encErr := crystaldbg.EncodeSnapshot(runID, image, snap, time.Now())
			if encErr != nil {
				log.Printf("crystalvm: snapshot encode failed: %v", encErr)
			} else if writeErr := os.WriteFile(*snapshot, encoded, 0o644); writeErr != nil {
				log.Printf("crystalvm: snapshot write failed: %v", writeErr)
			} else {
				log.Println(crystaldbg.DescribeSnapshot(encoded, snap))
			}
		}
		os.Exit(1)
	}
}
