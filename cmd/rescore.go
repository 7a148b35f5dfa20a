package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/artifact"
	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/scorer"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute a published artifact for another access mode",
	Long:  "Downloads a city's artifact, recomputes the access component and location score of every cell for the given access mode, and writes the result to a file, stdout, or back to the bucket.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("rescore"); err != nil {
			return err
		}

		name, _ := cmd.Flags().GetString("city")
		modeFlag, _ := cmd.Flags().GetString("access-mode")
		output, _ := cmd.Flags().GetString("output")
		upload, _ := cmd.Flags().GetBool("upload")

		city, ok := model.FindCity(cfg.Cities, name)
		if !ok {
			return eris.Errorf("unknown city %q", name)
		}
		mode, err := scorer.ParseAccessMode(modeFlag)
		if err != nil {
			return err
		}
		profile, err := loadProfile()
		if err != nil {
			return err
		}

		objects, err := initObjectStore(ctx)
		if err != nil {
			return eris.Wrap(err, "init object store")
		}

		tmp, err := os.MkdirTemp("", "atm-rescore-")
		if err != nil {
			return eris.Wrap(err, "rescore: create temp dir")
		}
		defer os.RemoveAll(tmp) //nolint:errcheck

		key := artifact.Key(city.Name)
		local := filepath.Join(tmp, key)
		if err := objects.Download(ctx, key, local); err != nil {
			return eris.Wrapf(err, "rescore: download %s", key)
		}
		data, err := os.ReadFile(local)
		if err != nil {
			return eris.Wrap(err, "rescore: read artifact")
		}

		out, n, err := rescoreArtifact(data, mode, profile)
		if err != nil {
			return err
		}
		zap.L().Info("artifact rescored",
			zap.String("city", city.Name),
			zap.String("access_mode", string(mode)),
			zap.Int("cells", n),
		)

		if upload {
			if err := objects.Upload(ctx, key, bytes.NewReader(out), int64(len(out)), artifact.ContentType); err != nil {
				return eris.Wrapf(err, "rescore: upload %s", key)
			}
		}
		if output == "" || output == "-" {
			if upload {
				return nil
			}
			_, err := os.Stdout.Write(out)
			return err
		}
		return eris.Wrap(os.WriteFile(output, out, 0o644), "rescore: write output")
	},
}

func init() {
	rescoreCmd.Flags().String("city", "", "city whose artifact to rescore (required)")
	rescoreCmd.Flags().String("access-mode", "", "target access mode: 24h, until-23:00 or until-19:00 (required)")
	rescoreCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	rescoreCmd.Flags().Bool("upload", false, "replace the published artifact with the rescored one")
	_ = rescoreCmd.MarkFlagRequired("city")
	_ = rescoreCmd.MarkFlagRequired("access-mode")
	rootCmd.AddCommand(rescoreCmd)
}

// rescoreArtifact decodes an artifact, rescores every cell and encodes the
// result. It returns the number of cells.
func rescoreArtifact(data []byte, mode scorer.AccessMode, profile scorer.Profile) ([]byte, int, error) {
	cells, version, err := artifact.DecodeProfile(data)
	if err != nil {
		return nil, 0, err
	}
	if profileMismatch(version, profile) {
		zap.L().Warn("rescore: artifact was scored with another profile",
			zap.String("artifact_profile", version),
			zap.String("profile", profile.Version),
		)
	}
	for i, c := range cells {
		rescored, err := scorer.Rescore(c, mode, profile)
		if err != nil {
			return nil, 0, err
		}
		cells[i] = rescored
	}
	out, err := artifact.Encode(cells, profile.Version)
	if err != nil {
		return nil, 0, err
	}
	return out, len(cells), nil
}

// profileMismatch reports whether an artifact's recorded profile version
// differs from p. Artifacts without a version are not flagged.
func profileMismatch(version string, p scorer.Profile) bool {
	return version != "" && version != p.Version
}
