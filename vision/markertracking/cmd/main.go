// Package main is the track-marker command: it follows a printed image target through video files
// or cameras and writes annotated frames.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/invopop/jsonschema"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/viam-labs/imagetarget/logging"
	"github.com/viam-labs/imagetarget/rimage"
	"github.com/viam-labs/imagetarget/rimage/transform"
	"github.com/viam-labs/imagetarget/vision/keypoints"
	"github.com/viam-labs/imagetarget/vision/markertracking"
)

const (
	flagTemplate   = "template"
	flagWidth      = "width"
	flagInput      = "input"
	flagConfig     = "config"
	flagIntrinsics = "intrinsics"
	flagOutput     = "output"
	flagMaxFrames  = "max-frames"
	flagResize     = "resize"
	flagDebug      = "debug"
	flagLogFile    = "log-file"
	flagPlot       = "plot-template"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logging.Global().Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "track-marker",
		Usage: "track a planar image target through video",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagTemplate,
				Aliases: []string{"t"},
				Usage:   "image of the target to track",
			},
			&cli.Float64Flag{
				Name:  flagWidth,
				Value: 1,
				Usage: "physical width of the printed target; poses are reported in the same unit",
			},
			&cli.StringSliceFlag{
				Name:    flagInput,
				Aliases: []string{"i"},
				Value:   cli.NewStringSlice("0"),
				Usage:   "video file, stream URL or camera index; repeat to track several streams at once",
			},
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load tracking configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagIntrinsics,
				Usage: "load camera intrinsics from `FILE`, overriding the configuration",
			},
			&cli.StringFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "directory to write annotated frames to",
			},
			&cli.IntFlag{
				Name:  flagMaxFrames,
				Usage: "stop after this many frames of each input, 0 for all of them",
			},
			&cli.IntFlag{
				Name:  flagResize,
				Usage: "scale frames to this width before tracking, 0 to keep them",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated by size",
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "write the template with its detected keypoints to `FILE` (png)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Action: trackAction,
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "print the JSON schema of the tracking configuration",
				Action: schemaAction,
			},
		},
	}
}

func schemaAction(c *cli.Context) error {
	schema := jsonschema.Reflect(&markertracking.Config{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

func trackAction(c *cli.Context) error {
	if c.String(flagTemplate) == "" {
		return errors.Errorf("--%s is required", flagTemplate)
	}
	logger := logging.NewLogger("track-marker")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("track-marker")
	}
	if fn := c.String(flagLogFile); fn != "" {
		appender, closer := logging.NewFileAppender(fn)
		defer utils.UncheckedErrorFunc(closer.Close)
		logger.AddAppender(appender)
	}
	logging.ReplaceGlobal(logger)
	defer utils.UncheckedErrorFunc(logger.Sync)

	cfg := markertracking.DefaultConfig()
	if fn := c.String(flagConfig); fn != "" {
		var err error
		if cfg, err = markertracking.LoadConfig(fn); err != nil {
			return err
		}
	}
	if fn := c.String(flagIntrinsics); fn != "" {
		intrinsics, err := transform.NewPinholeCameraIntrinsicsFromJSONFile(fn)
		if err != nil {
			return err
		}
		cfg.Intrinsics = intrinsics
	}

	template, err := markertracking.NewMarkerTemplateFromFile(c.String(flagTemplate), c.Float64(flagWidth), cfg.ORB)
	if err != nil {
		return err
	}
	logger.Infow("loaded template", "file", c.String(flagTemplate), "keypoints", len(template.KeyPoints()))
	if fn := c.String(flagPlot); fn != "" {
		if err := keypoints.PlotKeypoints(template.Image(), template.KeyPoints(), fn); err != nil {
			return err
		}
	}

	inputs := c.StringSlice(flagInput)
	var group errgroup.Group
	for i, input := range inputs {
		streamLogger := logger
		outDir := c.String(flagOutput)
		if len(inputs) > 1 {
			streamLogger = logger.Sublogger(strconv.Itoa(i))
			if outDir != "" {
				outDir = filepath.Join(outDir, strconv.Itoa(i))
			}
		}
		if outDir != "" {
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return err
			}
		}
		// the template is shared read only; each stream gets its own tracker
		tracker, err := markertracking.NewTracker(template, cfg, streamLogger)
		if err != nil {
			return err
		}
		s := &stream{
			input:     input,
			outDir:    outDir,
			maxFrames: c.Int(flagMaxFrames),
			resize:    c.Int(flagResize),
			overlay:   cfg.Overlay,
			tracker:   tracker,
			logger:    streamLogger,
		}
		group.Go(s.run)
	}
	return group.Wait()
}

// stream feeds one video source through its own tracker.
type stream struct {
	input     string
	outDir    string
	maxFrames int
	resize    int
	overlay   markertracking.OverlayOptions
	tracker   *markertracking.Tracker
	logger    logging.Logger
}

func (s *stream) run() error {
	capture, err := gocv.OpenVideoCapture(s.input)
	if err != nil {
		return errors.Wrapf(err, "cannot open %q", s.input)
	}
	defer utils.UncheckedErrorFunc(capture.Close)

	frame := gocv.NewMat()
	defer utils.UncheckedErrorFunc(frame.Close)

	var (
		processed int
		visible   int
		depths    []float64
	)
	for s.maxFrames <= 0 || processed < s.maxFrames {
		if !capture.Read(&frame) || frame.Empty() {
			break
		}
		gray, err := rimage.MatToGray(frame)
		if err != nil {
			return err
		}
		gray = rimage.ResizeGray(gray, s.resize)

		res, err := s.tracker.ProcessFrame(gray)
		if err != nil {
			return errors.Wrapf(err, "%s frame %d", s.input, processed+1)
		}
		processed++
		if res.Visible {
			visible++
			depths = append(depths, res.Pose.Translation.Z)
			s.logger.Debugw("pose", "frame", processed, "pose", res.Pose.String())
		}
		if s.outDir != "" {
			annotated := markertracking.DrawOverlay(gray, res, s.overlay)
			fn := filepath.Join(s.outDir, fmt.Sprintf("frame_%05d.png", processed))
			if err := rimage.WriteImageToFile(fn, annotated); err != nil {
				return err
			}
		}
	}

	s.logger.Infow("done", "input", s.input, "frames", processed, "visible", visible)
	if len(depths) > 0 {
		mean, err := stats.Mean(depths)
		if err != nil {
			return err
		}
		spread, err := stats.StandardDeviation(depths)
		if err != nil {
			return err
		}
		s.logger.Infow("marker depth", "mean", mean, "stddev", spread)
	}
	if camera := s.tracker.Camera(); camera != nil {
		fovX, fovY := camera.FieldOfView()
		s.logger.Infow("camera field of view", "horizontal_deg", fovX, "vertical_deg", fovY)
	}
	return nil
}
