package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sys/cpu"

	cpubackend "github.com/born-ml/qconv/backend/cpu"
	"github.com/born-ml/qconv/backend/webgpu"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the platform, CPU features and available backends",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printInfo(cmd.OutOrStdout())
		},
	}
}

func printInfo(w io.Writer) {
	fmt.Fprintf(w, "GOOS: %s\n", runtime.GOOS)
	fmt.Fprintf(w, "GOARCH: %s\n", runtime.GOARCH)
	fmt.Fprintf(w, "NumCPU: %d\n", runtime.NumCPU())
	fmt.Fprintln(w)

	switch runtime.GOARCH {
	case "arm64":
		printARM64Features(w)
	case "amd64":
		printAMD64Features(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Backend: %s\n", cpubackend.New().Name())
	if err := webgpu.Probe(); err != nil {
		fmt.Fprintf(w, "WebGPU adapter: unavailable (%v)\n", err)
	} else {
		fmt.Fprintln(w, "WebGPU adapter: available")
	}
	if _, err := webgpu.NewEngine(); err != nil {
		fmt.Fprintf(w, "WebGPU engine: %v\n", err)
	}
}

func printARM64Features(w io.Writer) {
	fmt.Fprintln(w, "=== golang.org/x/sys/cpu.ARM64 ===")
	fmt.Fprintf(w, "  HasASIMD:    %v (NEON baseline)\n", cpu.ARM64.HasASIMD)
	fmt.Fprintf(w, "  HasFP:       %v\n", cpu.ARM64.HasFP)
	fmt.Fprintf(w, "  HasASIMDHP:  %v (FP16 NEON)\n", cpu.ARM64.HasASIMDHP)
	fmt.Fprintf(w, "  HasASIMDDP:  %v (int8 dot product)\n", cpu.ARM64.HasASIMDDP)
	fmt.Fprintf(w, "  HasSVE:      %v\n", cpu.ARM64.HasSVE)
	fmt.Fprintf(w, "  HasSVE2:     %v\n", cpu.ARM64.HasSVE2)
}

func printAMD64Features(w io.Writer) {
	fmt.Fprintln(w, "=== golang.org/x/sys/cpu.X86 ===")
	fmt.Fprintf(w, "  HasAVX:        %v\n", cpu.X86.HasAVX)
	fmt.Fprintf(w, "  HasAVX2:       %v\n", cpu.X86.HasAVX2)
	fmt.Fprintf(w, "  HasFMA:        %v\n", cpu.X86.HasFMA)
	fmt.Fprintf(w, "  HasAVX512F:    %v\n", cpu.X86.HasAVX512F)
	fmt.Fprintf(w, "  HasAVX512VNNI: %v (int8 dot product)\n", cpu.X86.HasAVX512VNNI)
	fmt.Fprintf(w, "  HasSSE41:      %v\n", cpu.X86.HasSSE41)
}
