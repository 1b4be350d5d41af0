package manifest

import (
	"fmt"
	"os"

	"github.com/italolelis/asset_bootstrap/internal/asset"
	"gopkg.in/yaml.v3"
)

const assetsBaseURL = "https://github.com/diasurgical/devilutionx-assets/releases/download/"

// supersededFontSizes are byte sizes of fonts.mpq releases that predate the current one.
var supersededFontSizes = []int64{53991317, 70135809}

// DefaultCatalog is the built-in asset table.
func DefaultCatalog() []asset.Descriptor {
	return []asset.Descriptor{
		{
			ID:             asset.CoreArchive,
			Label:          "Shareware Data",
			Files:          []string{"diabdat.mpq", "DIABDAT.MPQ"},
			SharewareFiles: []string{"spawn.mpq"},
			FetchName:      "spawn.mpq",
			URL:            assetsBaseURL + "v2/spawn.mpq",
		},
		translation("pl"),
		translation("ru"),
		{
			ID:            asset.Fonts,
			Label:         "Extra Game Fonts",
			Files:         []string{"fonts.mpq"},
			FetchName:     "fonts.mpq",
			URL:           assetsBaseURL + "v4/fonts.mpq",
			Languages:     []string{"ko", "zh", "ja"},
			KeepIfPresent: true,
			Stale:         asset.SupersededSizes(supersededFontSizes...),
		},
	}
}

func translation(lang string) asset.Descriptor {
	return asset.Descriptor{
		ID:        asset.Translation(lang),
		Label:     "Translation Data",
		Files:     []string{lang + ".mpq"},
		FetchName: lang + ".mpq",
		URL:       assetsBaseURL + "v2/" + lang + ".mpq",
		Languages: []string{lang},
	}
}

type catalogFile struct {
	Assets []catalogEntry `yaml:"assets"`
}

type catalogEntry struct {
	ID              string   `yaml:"id"`
	Label           string   `yaml:"label"`
	Files           []string `yaml:"files"`
	SharewareFiles  []string `yaml:"shareware_files"`
	FetchName       string   `yaml:"fetch_name"`
	URL             string   `yaml:"url"`
	Languages       []string `yaml:"languages"`
	KeepIfPresent   bool     `yaml:"keep_if_present"`
	SupersededSizes []int64  `yaml:"superseded_sizes"`
}

// LoadCatalog reads a YAML asset table that replaces the built-in one.
func LoadCatalog(path string) ([]asset.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return ParseCatalog(data)
}

func ParseCatalog(data []byte) ([]asset.Descriptor, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if len(file.Assets) == 0 {
		return nil, fmt.Errorf("catalog lists no assets")
	}

	descriptors := make([]asset.Descriptor, 0, len(file.Assets))

	for _, e := range file.Assets {
		if len(e.Files) == 0 && len(e.SharewareFiles) == 0 {
			return nil, fmt.Errorf("asset %q lists no files", e.ID)
		}

		d := asset.Descriptor{
			ID:             asset.ID(e.ID),
			Label:          e.Label,
			Files:          e.Files,
			SharewareFiles: e.SharewareFiles,
			FetchName:      e.FetchName,
			URL:            e.URL,
			Languages:      e.Languages,
			KeepIfPresent:  e.KeepIfPresent,
		}

		if len(e.SupersededSizes) > 0 {
			d.Stale = asset.SupersededSizes(e.SupersededSizes...)
		}

		descriptors = append(descriptors, d)
	}

	return descriptors, nil
}
