/*
Copyright © 2019 the SEBAL authors.
This file is part of SEBAL.

SEBAL is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SEBAL is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SEBAL.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package sebalutil contains the command-line interface for SEBAL.
package sebalutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/sebal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	p := sebal.DefaultParams()

	// Options are the configuration options available to SEBAL.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SceneFile",
			usage: `
              SceneFile is the path to the NetCDF scene file to be processed.
              It can be a local path, a URL, or a blob storage location
              such as gs://bucket/scene.nc.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags()},
		},
		{
			name: "Manifest",
			usage: `
              Manifest is the path to the TOML file listing the scenes
              to be aggregated.`,
			shorthand:  "m",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "DEMFile",
			usage: `
              DEMFile is the path to a NetCDF raster with an 'elevation'
              variable [m]. It is resampled to each scene grid.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "DEMCacheSize",
			usage: `
              DEMCacheSize is the number of resampled DEM grids to keep
              in memory.`,
			defaultVal: 8,
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "MeteorologyFile",
			usage: `
              MeteorologyFile is the path to a NetCDF raster on the scene
              grid with air temperature (T_air, °C), wind speed at 2 m (ux),
              relative humidity (RH) and either daily net radiation (Rn24h)
              or daily shortwave radiation (Rs24h).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "ERA5File",
			usage: `
              ERA5File is the path to an hourly ERA5 single-level NetCDF file
              covering the scene times and the hours from 11 hours before
              to 13 hours after them.
              It is used instead of MeteorologyFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "AOIFile",
			usage: `
              AOIFile is the path to a GeoJSON polygon in longitude and
              latitude. Aggregate pixels outside of it are masked.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Points",
			usage: `
              Points specifies locations where a time series of scene values
              is extracted into the summary, as a map of point names to
              "longitude,latitude", for example '{"farm":"-100.5,40.2"}'.
              Names set in a configuration file are lowercased.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the desired output file. Files
              ending in '.nc' are written as NetCDF rasters and all others
              as shapefiles. It can include environment variables.`,
			shorthand:  "o",
			defaultVal: "sebal_output.nc",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "SummaryFile",
			usage: `
              SummaryFile specifies the path to a TOML file describing the
              endmembers and calibration of each scene. If it is empty, no
              summary is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to the desired logfile location. It can include
              environment variables. If LogFile is left blank, the logfile will be saved in
              the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which variables should be output,
              as a map of output names to expressions of band names, for
              example '{"ET":"ET_24h","ETin":"inches(ET_24h)"}'. Aggregate
              runs have the bands ET_24h and N.`,
			defaultVal: map[string]string{"ET": sebal.BandET24h},
			flagsets:   []*pflag.FlagSet{sceneCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of scenes to process at once.`,
			defaultVal: runtime.GOMAXPROCS(0),
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "Endmember.ColdNDVIPercentile",
			usage: `
              Endmember.ColdNDVIPercentile is the NDVI percentile at and above
              which pixels are candidates for the cold endmember.`,
			defaultVal: p.ColdNDVIPercentile,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Endmember.ColdLSTPercentile",
			usage: `
              Endmember.ColdLSTPercentile is the land surface temperature
              percentile, within the cold NDVI candidates, at and below which
              pixels are kept.`,
			defaultVal: p.ColdLSTPercentile,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Endmember.HotNDVIPercentile",
			usage: `
              Endmember.HotNDVIPercentile is the NDVI percentile at and below
              which pixels are candidates for the hot endmember.`,
			defaultVal: p.HotNDVIPercentile,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Endmember.HotLSTPercentile",
			usage: `
              Endmember.HotLSTPercentile is the land surface temperature
              percentile, within the hot NDVI candidates, at and above which
              pixels are kept.`,
			defaultVal: p.HotLSTPercentile,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Endmember.MinLST",
			usage: `
              Endmember.MinLST is the lowest land surface temperature [K]
              accepted for an endmember.`,
			defaultVal: p.MinLST,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Solver.Convergence",
			usage: `
              Solver.Convergence is the fractional change in aerodynamic
              resistance below which the stability iteration stops.`,
			defaultVal: p.Convergence,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Solver.MaxIterations",
			usage: `
              Solver.MaxIterations is the maximum number of stability
              iterations. Pixels that have not converged are flagged.`,
			defaultVal: p.MaxIterations,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Solver.StationVegHeight",
			usage: `
              Solver.StationVegHeight is the vegetation height [m] at the
              weather station.`,
			defaultVal: p.StationVegHeight,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Solver.BlendingHeight",
			usage: `
              Solver.BlendingHeight is the height [m] at which wind speed is
              assumed to be unaffected by the surface.`,
			defaultVal: p.BlendingHeight,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Solver.WindHeight",
			usage: `
              Solver.WindHeight is the height [m] of the wind speed input.`,
			defaultVal: p.WindHeight,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SAVIL",
			usage: `
              SAVIL is the soil brightness constant of the soil adjusted
              vegetation index.`,
			defaultVal: p.SAVIL,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LapseRate",
			usage: `
              LapseRate is the temperature lapse rate [K/m] used to adjust land
              surface temperature for elevation.`,
			defaultVal: p.LapseRate,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SEBAL")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(sceneCmd)
	Root.AddCommand(aggregateCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("sebal: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// settings reads the run settings from the configuration.
func settings() (Settings, error) {
	params, err := ParamsFromConfig(Cfg)
	if err != nil {
		return Settings{}, err
	}
	vars, err := GetStringMapString("OutputVariables", Cfg)
	if err != nil {
		return Settings{}, err
	}
	points, err := GetStringMapString("Points", Cfg)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		LogFile:         Cfg.GetString("LogFile"),
		OutputFile:      Cfg.GetString("OutputFile"),
		SummaryFile:     Cfg.GetString("SummaryFile"),
		OutputVariables: vars,
		DEMFile:         Cfg.GetString("DEMFile"),
		DEMCacheSize:    Cfg.GetInt("DEMCacheSize"),
		MeteorologyFile: Cfg.GetString("MeteorologyFile"),
		ERA5File:        Cfg.GetString("ERA5File"),
		AOIFile:         Cfg.GetString("AOIFile"),
		Points:          points,
		Workers:         Cfg.GetInt("Workers"),
		Params:          params,
	}, nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "sebal",
	Short: "Satellite-based evapotranspiration.",
	Long: `SEBAL estimates actual evapotranspiration from multispectral and thermal
satellite imagery using the Surface Energy Balance Algorithm for Land.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SEBAL_var' where 'var' is the
name of the variable to be set. Many configuration variables are additionally
allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of SEBAL.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("SEBAL v%s\n", sebal.Version)
	},
	DisableAutoGenTag: true,
}

// sceneCmd processes a single scene.
var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Calculate evapotranspiration for one scene.",
	Long: `scene calculates instantaneous and daily evapotranspiration for a single
satellite scene, using a DEM and either a meteorology raster or an ERA5 file,
and writes the requested output variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings()
		if err != nil {
			return err
		}
		return RunScene(context.Background(), cmd.OutOrStdout(), Cfg.GetString("SceneFile"), s)
	},
	DisableAutoGenTag: true,
}

// aggregateCmd averages daily evapotranspiration over a collection.
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Average daily evapotranspiration over a collection of scenes.",
	Long: `aggregate processes every scene listed in a manifest and calculates the
per-pixel mean of daily evapotranspiration over the scenes where each pixel
is valid. Scenes that cannot be processed are skipped and listed in the
summary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings()
		if err != nil {
			return err
		}
		return RunAggregate(context.Background(), cmd.OutOrStdout(), Cfg.GetString("Manifest"), s)
	},
	DisableAutoGenTag: true,
}
