package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cpubackend "github.com/born-ml/qconv/backend/cpu"
	"github.com/born-ml/qconv/nn"
	"github.com/born-ml/qconv/tensor"
)

// demoOptions are the scalar values of a single-tap quantized convolution.
type demoOptions struct {
	scale  float32
	input  float32
	weight float32
	bias   float32
	grad   float32
}

func newDemoCommand() *cobra.Command {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a 1x1 quantized convolution forward and backward",
		Long: `Runs a one-channel 1x1 quantized convolution on a single input value and
prints the quantized level, the output and the three gradients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.Float32Var(&opts.scale, "scale", 1, "quantization scale (levels per unit)")
	f.Float32Var(&opts.input, "input", 3.7, "input activation")
	f.Float32Var(&opts.weight, "weight", 2, "kernel weight")
	f.Float32Var(&opts.bias, "bias", 0, "bias value")
	f.Float32Var(&opts.grad, "grad", 1, "gradient arriving at the output")
	return cmd
}

func runDemo(w io.Writer, opts demoOptions) error {
	layer, err := nn.NewQuantConv(nn.QuantConvConfig{
		Geometry: nn.Uniform(2, 1, 1, 1, 1, 0, true),
		Scale:    opts.scale,
		Workers:  1,
	}, cpubackend.New())
	if err != nil {
		return err
	}
	layer.Weight().Tensor().Data()[0] = opts.weight
	layer.Bias().Tensor().Data()[0] = opts.bias

	shape := tensor.Shape{1, 1, 1, 1}
	input, err := tensor.FromSlice([]float32{opts.input}, shape)
	if err != nil {
		return err
	}
	output, err := layer.Forward(input)
	if err != nil {
		return err
	}

	outputGrad, err := tensor.FromSlice([]float32{opts.grad}, shape)
	if err != nil {
		return err
	}
	inputGrad := tensor.Zeros(shape)
	if err := layer.Backward(outputGrad, input, layer.ParamGradients(inputGrad)); err != nil {
		return err
	}

	fmt.Fprintf(w, "%v\n\n", layer)
	fmt.Fprintf(w, "step:         %g\n", layer.Codec().Step())
	fmt.Fprintf(w, "input:        %g\n", opts.input)
	fmt.Fprintf(w, "level:        %g\n", layer.Codec().Quantize(opts.input))
	fmt.Fprintf(w, "output:       %g\n", output.Data()[0])
	fmt.Fprintf(w, "weight grad:  %g\n", layer.Weight().Grad().Data()[0])
	fmt.Fprintf(w, "bias grad:    %g\n", layer.Bias().Grad().Data()[0])
	fmt.Fprintf(w, "input grad:   %g\n", inputGrad.Data()[0])
	return nil
}
