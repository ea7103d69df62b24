package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	defaultImageSize = 1024
	minImageSize     = 200
)

type ImageFormat string

type Config struct {
	DBPath       string
	SessionID    int64
	OutputFile   string
	Format       ImageFormat
	Theme        ColorTheme
	Size         int // Plot area edge in pixels
	MinTimestamp *time.Time
	MaxTimestamp *time.Time
	SkipOccluded bool
	TimeZone     *time.Location
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    ClassicTheme,
		Size:     defaultImageSize,
		TimeZone: time.Local,
	}
}

// NewConfigFromCLI parses args, usually os.Args[1:]
func NewConfigFromCLI(args []string) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("trackplot", flag.ContinueOnError)

	var imageFormat, theme, from, to, tz string
	fs.StringVar(&c.DBPath, "db", "", "Path to the flight recorder database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(ClassicTheme), "Speed color theme. [classic, thermal, grayscale]")
	fs.IntVar(&c.Size, "size", defaultImageSize, "Plot area size in pixels")
	fs.StringVar(&from, "from", "", "Skip records before this time (format 2006-01-02 15:04:05)")
	fs.StringVar(&to, "to", "", "Skip records after this time (format 2006-01-02 15:04:05)")
	fs.StringVar(&tz, "tz", "Local", "Time zone for the time filters and labels")
	fs.BoolVar(&c.SkipOccluded, "skip-occluded", false, "Leave out samples without a measured position")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)
	theme = strings.ToLower(theme)

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid time zone '%s': %w", tz, err)
	}
	c.TimeZone = loc

	if c.MinTimestamp, err = parseTimestamp(from, loc); err != nil {
		return nil, fmt.Errorf("invalid -from: %w", err)
	}
	if c.MaxTimestamp, err = parseTimestamp(to, loc); err != nil {
		return nil, fmt.Errorf("invalid -to: %w", err)
	}

	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.Size < minImageSize:
		err = fmt.Errorf("image size must be at least %dpx", minImageSize)
	case c.MinTimestamp != nil && c.MaxTimestamp != nil && c.MaxTimestamp.Before(*c.MinTimestamp):
		err = errors.New("-to is before -from")
	}
	if err == nil {
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		} else if _, ok = validThemes[ColorTheme(theme)]; !ok {
			err = fmt.Errorf("invalid color theme: %s", theme)
		}
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.Theme = ColorTheme(theme)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTimestamp(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}

	t, err := time.ParseInLocation(time.DateTime, s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
