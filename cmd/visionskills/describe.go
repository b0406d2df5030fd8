package main

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/vision/internal/skill"
	"github.com/born-ml/vision/internal/skills"
)

func newDescribeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe <kind>",
		Short: "Show a skill's descriptor and the devices it can run on",
		Long: `Show the descriptor of a skill family: identity, version and the schema
of its input and output features. Kinds: facesentiment, objectdetector,
objecttracker, skeletal, rectifier.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := skill.ParseKind(args[0])
			if err != nil {
				return err
			}
			manifests, err := a.manifests()
			if err != nil {
				return err
			}
			desc, err := skills.Descriptor(kind, manifests[kind])
			if err != nil {
				return errors.Wrapf(err, "describe %s", kind)
			}

			if asJSON {
				out, err := json.MarshalIndent(desc, "", "  ")
				if err != nil {
					return errors.Wrap(err, "format descriptor")
				}
				a.out.Info(string(out))
				return nil
			}

			a.out.Section(desc.Name)
			a.out.Field("id", desc.ID)
			a.out.Field("version", desc.Version)
			if desc.Author != "" {
				a.out.Field("author", desc.Author)
			}
			if desc.Description != "" {
				a.out.Field("description", desc.Description)
			}
			if m, ok := manifests[kind]; ok {
				a.out.Field("manifest", m.Dir())
			} else if kind != skill.ObjectTracker && kind != skill.ImageRectifier {
				a.out.Warning(fmt.Sprintf("no %s manifest under %s; the skill cannot be loaded", kind, a.cfg.Models.Dir))
			}
			printFeatures(a, "inputs", desc.Inputs)
			printFeatures(a, "outputs", desc.Outputs)

			level, err := a.cfg.MinFeatureLevel()
			if err != nil {
				return err
			}
			devices, err := desc.SupportedDevices(cmd.Context(), a.enumerator, level)
			if err != nil {
				return errors.Wrap(err, "supported devices")
			}
			a.out.Info("")
			for i, d := range devices {
				a.out.Item(i, d.String(), false)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the descriptor as JSON")
	return cmd
}

func printFeatures(a *app, title string, fds []skill.FeatureDescriptor) {
	a.out.Info("")
	a.out.Info(title + ":")
	for _, fd := range fds {
		shape := fmt.Sprint(fd.Shape)
		if fd.Kind == skill.KindImage {
			shape = fd.PixelFormat.String()
		}
		req := ""
		if fd.Required {
			req = " (required)"
		}
		a.out.Field(fd.Name, fmt.Sprintf("%s %s%s", fd.Kind, shape, req))
	}
}
