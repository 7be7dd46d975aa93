package config

import "time"

// Settings is the process configuration shared by the server and the CLI.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	RasterURLTemplate string
	RasterCRS         string
	HTTPTimeout       time.Duration

	BoundaryPath        string
	BoundaryLayer       string
	BoundaryStateField  string
	BoundaryCountyField string
	BoundaryDSN         string
	BoundaryQuery       string

	OutputPath      string
	FramesPerSecond int
	LoopCount       int
	LabelYears      bool
}

// FromEnv reads Settings from the environment, applying defaults for unset keys.
// Call Load first to pick up a .env file.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		RasterURLTemplate: GetEnv("RASTER_URL_TEMPLATE", "https://s3-us-west-2.amazonaws.com/mrlc/Annual_NLCD_LndCov_{year}_CU_C1V0.tif"),
		RasterCRS:         GetEnv("RASTER_CRS", ""),
		HTTPTimeout:       GetEnvDuration("HTTP_TIMEOUT", 2*time.Minute),

		BoundaryPath:        GetEnv("BOUNDARY_PATH", "https://geodata.ucdavis.edu/diva/adm/USA_adm.zip"),
		BoundaryLayer:       GetEnv("BOUNDARY_LAYER", "USA_adm2"),
		BoundaryStateField:  GetEnv("BOUNDARY_STATE_FIELD", "NAME_1"),
		BoundaryCountyField: GetEnv("BOUNDARY_COUNTY_FIELD", "NAME_2"),
		BoundaryDSN:         GetEnv("BOUNDARY_DSN", ""),
		BoundaryQuery:       GetEnv("BOUNDARY_QUERY", ""),

		OutputPath:      GetEnv("OUTPUT_PATH", "nlcd.gif"),
		FramesPerSecond: GetEnvInt("FRAMES_PER_SECOND", 4),
		LoopCount:       GetEnvInt("LOOP_COUNT", 0),
		LabelYears:      GetEnvBool("LABEL_YEARS", false),
	}
}
