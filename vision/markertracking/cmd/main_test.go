package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"github.com/viam-labs/imagetarget/rimage"
	"github.com/viam-labs/imagetarget/testutils"
)

func TestSchemaCommand(t *testing.T) {
	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	test.That(t, app.Run([]string{"track-marker", "schema"}), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldContainSubstring, "min_matches")
	test.That(t, buf.String(), test.ShouldContainSubstring, "intrinsic_parameters")
	test.That(t, buf.String(), test.ShouldContainSubstring, "ratio_threshold")
}

func TestTrackImageSequence(t *testing.T) {
	dir := t.TempDir()
	template := testutils.TexturedGray(200, 200, 1)
	templateFile := filepath.Join(dir, "template.png")
	test.That(t, rimage.WriteImageToFile(templateFile, template), test.ShouldBeNil)
	frame := testutils.Embed(template, 320, 240, 1, 100)
	for i := 0; i < 3; i++ {
		fn := filepath.Join(dir, fmt.Sprintf("in_%02d.png", i))
		test.That(t, rimage.WriteImageToFile(fn, frame), test.ShouldBeNil)
	}

	out := filepath.Join(dir, "out")
	logFile := filepath.Join(dir, "track.log")
	err := newApp().Run([]string{
		"track-marker",
		"--template", templateFile,
		"--input", filepath.Join(dir, "in_%02d.png"),
		"--output", out,
		"--max-frames", "3",
		"--log-file", logFile,
		"--plot-template", filepath.Join(dir, "keypoints.png"),
	})
	test.That(t, err, test.ShouldBeNil)
	for i := 1; i <= 3; i++ {
		_, err := os.Stat(filepath.Join(out, fmt.Sprintf("frame_%05d.png", i)))
		test.That(t, err, test.ShouldBeNil)
	}
	_, err = os.Stat(filepath.Join(dir, "keypoints.png"))
	test.That(t, err, test.ShouldBeNil)
	logs, err := os.ReadFile(logFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logs), test.ShouldContainSubstring, "marker acquired")
}

func TestMissingTemplate(t *testing.T) {
	err := newApp().Run([]string{"track-marker", "--input", "missing.mp4"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "template")
}
