package stores

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liut/agrochat/pkg/models/aigc"
)

// LoadPreset reads companies and models from a yaml file, defaults fill what is missing
func LoadPreset(name string) (doc aigc.Preset, err error) {
	if len(name) > 0 {
		var yf *os.File
		yf, err = os.Open(name)
		if err != nil {
			logger().Infow("load preset fail", "file", name, "err", err)
			return aigc.Preset{}.WithDefaults(), err
		}
		defer yf.Close()
		err = yaml.NewDecoder(yf).Decode(&doc)
		if err != nil {
			logger().Infow("decode preset fail", "err", err)
			return aigc.Preset{}.WithDefaults(), err
		}
	}

	return doc.WithDefaults(), nil
}
