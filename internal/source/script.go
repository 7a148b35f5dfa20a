package source

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/atm-scoring/internal/model"
	"github.com/sells-group/atm-scoring/internal/resilience"
)

// Script names inside the scripts directory.
const (
	ScriptGetData    = "osm_get_data.sh"
	ScriptGeoExtract = "osm_create_geo_extract.sh"
	ScriptTagsFilter = "osm_tags_filter.sh"
)

// Runner executes an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec, capturing stderr for errors.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "source: %s failed: %s", filepath.Base(name), strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ScriptAcquirer drives the OSM shell utilities.
type ScriptAcquirer struct {
	ScriptsDir string
	Layout     Layout
	Runner     Runner
	// Regions overrides regional dump acquisition, e.g. with an HTTP mirror.
	Regions RegionFetcher
}

// NewScriptAcquirer returns an acquirer running scripts from scriptsDir and
// writing under dataDir.
func NewScriptAcquirer(scriptsDir, dataDir string) *ScriptAcquirer {
	return &ScriptAcquirer{
		ScriptsDir: scriptsDir,
		Layout:     Layout{DataDir: dataDir},
		Runner:     ExecRunner{},
	}
}

func (a *ScriptAcquirer) script(name string) string {
	return filepath.Join(a.ScriptsDir, name)
}

// FetchRegion downloads the regional dump. Failures are transient: the
// download is the flaky part of acquisition.
func (a *ScriptAcquirer) FetchRegion(ctx context.Context, region string) (string, error) {
	if a.Regions != nil {
		return a.Regions.FetchRegion(ctx, region)
	}
	out := a.Layout.RegionDump(region)
	if err := a.Runner.Run(ctx, a.script(ScriptGetData), region, a.Layout.DataDir); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", resilience.NewTransientError(eris.Wrapf(err, "source: fetch region %s", region), 0)
	}
	if err := expectFile(out); err != nil {
		return "", resilience.NewTransientError(err, 0)
	}
	return out, nil
}

// ExtractCity clips the city relation out of the regional dump.
func (a *ScriptAcquirer) ExtractCity(ctx context.Context, dump string, city model.City) (string, error) {
	out := a.Layout.CityExtract(city.Name)
	if err := os.MkdirAll(a.Layout.CityDir(city.Name), 0o755); err != nil {
		return "", eris.Wrapf(err, "source: create city dir for %s", city.Name)
	}
	if err := a.Runner.Run(ctx, a.script(ScriptGeoExtract), a.Layout.DataDir, dump, city.Name, city.OSMID); err != nil {
		return "", eris.Wrapf(err, "source: extract %s", city.Name)
	}
	if err := expectFile(out); err != nil {
		return "", err
	}
	zap.L().Debug("source: city extracted", zap.String("city", city.Name), zap.String("path", out))
	return out, nil
}

// FilterByTags writes the POI extract of a city.
func (a *ScriptAcquirer) FilterByTags(ctx context.Context, extract string, city model.City) (string, error) {
	out := a.Layout.POIExtract(city.Name)
	if err := a.Runner.Run(ctx, a.script(ScriptTagsFilter), city.Name, filepath.Dir(extract), out); err != nil {
		return "", eris.Wrapf(err, "source: filter tags for %s", city.Name)
	}
	if err := expectFile(out); err != nil {
		return "", err
	}
	return out, nil
}

func expectFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "source: expected output %s", path)
	}
	if info.Size() == 0 {
		return eris.Errorf("source: output %s is empty", path)
	}
	return nil
}
