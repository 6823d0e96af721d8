package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Skryldev/rasterpipe"
	"github.com/Skryldev/rasterpipe/core"
	apperrors "github.com/Skryldev/rasterpipe/errors"
)

var transformFlags struct {
	rotate       string
	flip         bool
	flop         bool
	width        int
	height       int
	fit          string
	keepMetadata bool
	orientation  int
	format       string
	quality      int
}

var transformCmd = &cobra.Command{
	Use:   "transform IN OUT",
	Short: "Transform one image file",
	Long: `Rotate, mirror and resize IN and write the result to OUT.

The output format comes from --format, else from the extension of OUT,
else from the input format.`,
	Args: cobra.ExactArgs(2),
	RunE: runTransform,
}

func init() {
	f := transformCmd.Flags()
	f.StringVar(&transformFlags.rotate, "rotate", "none", "rotation: none, auto, 0, 90, 180 or 270 (counter-clockwise)")
	f.BoolVar(&transformFlags.flip, "flip", false, "mirror vertically after rotation")
	f.BoolVar(&transformFlags.flop, "flop", false, "mirror horizontally after rotation")
	f.IntVar(&transformFlags.width, "width", 0, "target width (0 = derive from height)")
	f.IntVar(&transformFlags.height, "height", 0, "target height (0 = derive from width)")
	f.StringVar(&transformFlags.fit, "fit", "cover", "fit policy: cover, contain, fill, inside or outside")
	f.BoolVar(&transformFlags.keepMetadata, "keep-metadata", false, "carry metadata into the output")
	f.IntVar(&transformFlags.orientation, "orientation", 0, "write this orientation tag (1-8) into the output")
	f.StringVar(&transformFlags.format, "format", "", "output format: jpeg, png, gif, webp or avif")
	f.IntVar(&transformFlags.quality, "quality", 0, "encode quality 1-100 (0 = config default)")
	rootCmd.AddCommand(transformCmd)
}

// transformRequest builds the request from the flags. An explicit --fit asks
// for a resize even without a size, so validation can reject it.
func transformRequest(fitSet bool) (core.TransformRequest, error) {
	tf := transformFlags
	mode, err := core.ParseRotation(tf.rotate)
	if err != nil {
		return core.TransformRequest{}, err
	}
	opts := []core.RequestOption{
		core.WithRotation(mode),
		core.WithFlip(tf.flip),
		core.WithFlop(tf.flop),
		core.WithKeepMetadata(tf.keepMetadata),
	}
	if tf.width != 0 || tf.height != 0 || fitSet {
		fit, err := core.ParseFit(tf.fit)
		if err != nil {
			return core.TransformRequest{}, err
		}
		opts = append(opts, core.WithResize(tf.width, tf.height, fit))
	}
	if tf.orientation != 0 {
		opts = append(opts, core.WithMetadataOverride(core.Orientation(tf.orientation)))
	}
	return core.NewTransformRequest(opts...)
}

func outputFormat(name, path string) (core.Format, error) {
	if name != "" {
		f := core.ParseFormat(name)
		if f == core.FormatUnknown {
			return f, apperrors.InvalidArgument("format", name, apperrors.ErrUnsupportedFormat)
		}
		return f, nil
	}
	return core.ParseFormat(filepath.Ext(path)), nil
}

func runTransform(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	req, err := transformRequest(cmd.Flags().Changed("fit"))
	if err != nil {
		return err
	}
	format, err := outputFormat(transformFlags.format, args[1])
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	proc, cleanup, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	res, err := proc.Process(cmd.Context(), rasterpipe.FromReaderWithMeta(in, -1, "", args[0]), req, core.OutputOptions{
		Format:  format,
		Quality: transformFlags.quality,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[1], res.Data, 0o644); err != nil {
		return err
	}

	orientation := "none"
	if res.HasOrientation {
		orientation = res.Orientation.String()
	}
	cmd.Printf("%s: %dx%d %s orientation=%s policy=%s %s\n",
		args[1], res.Width, res.Height, res.Format, orientation, res.Policy, fmt.Sprint(res.Record.Applied))
	return nil
}
