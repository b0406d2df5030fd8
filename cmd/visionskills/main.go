// Command visionskills runs vision skills on images, frame streams and over HTTP.
package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/born-ml/vision/internal/config"
	"github.com/born-ml/vision/internal/device"
	"github.com/born-ml/vision/internal/logger"
	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

// flagKeys maps global flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"models-dir": "models.dir",
	"device":     "device.index",
}

type app struct {
	configFile string
	v          *viper.Viper
	cfg        *config.Config
	out        *presenter

	// enumerator is replaced in tests.
	enumerator device.Enumerator
}

func newApp() *app {
	return &app{
		out:        newPresenter(os.Stdout, os.Stderr),
		enumerator: device.DefaultEnumerator(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "visionskills",
		Short: "Run vision skills on images and frame streams",
		Long: `visionskills evaluates face sentiment, object detection, object tracking,
skeletal detection and image rectification skills on still images, frame
streams from a file glob or watched directory, and over an HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Root())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default $HOME/.visionskills/config.yaml or ./config.yaml)")
	pf.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text or json)")
	pf.String("models-dir", "./models", "directory holding one sub-directory with a manifest.yaml per skill")
	pf.Int("device", 0, "index into the device list printed by the devices command")

	root.AddCommand(
		newVersionCmd(a),
		newDevicesCmd(a),
		newDescribeCmd(a),
		newEvaluateCmd(a),
		newTrackCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) load(root *cobra.Command) error {
	v, err := config.New(a.configFile)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if err := bindFlags(v, root.PersistentFlags(), flagKeys); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if err := logger.SetLogLevel(cfg.Log.Level); err != nil {
		return errors.Wrapf(err, "log level %q", cfg.Log.Level)
	}
	logger.SetLogFormat(cfg.Log.Format)

	a.v, a.cfg = v, cfg
	return nil
}

// bindFlags binds each flag in keys to its configuration key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			return errors.Errorf("unknown flag --%s", flag)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "bind --%s", flag)
		}
	}
	return nil
}

// devices lists the qualifying execution devices and the configured one.
func (a *app) devices(ctx context.Context) ([]device.ExecutionDevice, device.ExecutionDevice, error) {
	level, err := a.cfg.MinFeatureLevel()
	if err != nil {
		return nil, device.ExecutionDevice{}, err
	}
	devices, err := device.Enumerate(ctx, a.enumerator, level)
	if err != nil {
		return nil, device.ExecutionDevice{}, errors.Wrap(err, "enumerate devices")
	}
	selected, err := device.Select(devices, a.cfg.Device.Index)
	if err != nil {
		return nil, device.ExecutionDevice{}, err
	}
	return devices, selected, nil
}

func (a *app) manifests() (map[skill.Kind]*skill.Manifest, error) {
	m, err := skill.DiscoverManifests(a.cfg.Models.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "discover skill manifests")
	}
	return m, nil
}

func (a *app) skillOptions(ctx context.Context) (skills.Options, error) {
	_, dev, err := a.devices(ctx)
	if err != nil {
		return skills.Options{}, err
	}
	manifests, err := a.manifests()
	if err != nil {
		return skills.Options{}, err
	}
	logger.G(ctx).WithField("device", dev.String()).WithField("manifests", len(manifests)).Debug("skill options ready")
	return skills.Options{Config: a.cfg, Manifests: manifests, Device: dev}, nil
}

func main() {
	a := newApp()
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		a.out.Error(err, "")
		os.Exit(1)
	}
}
