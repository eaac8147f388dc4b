package api

import (
	"net/http"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
)

// GPUStats is the dashboard view of one rocm-smi card.
type GPUStats struct {
	Use       int64   `json:"gpu_use"`
	Temp      float64 `json:"temp"`
	Power     float64 `json:"power"`
	VRAMUsed  int64   `json:"vram_used"`
	VRAMTotal int64   `json:"vram_total"`
	SCLK      *int64  `json:"sclk"`
	MCLK      *int64  `json:"mclk"`
}

// ParseGPUStats reads card0 of a `rocm-smi --json` document. Keys contain
// characters gjson treats as path syntax, so the card is walked rather than
// queried.
func ParseGPUStats(raw []byte) (GPUStats, bool) {
	if !gjson.ValidBytes(raw) {
		return GPUStats{}, false
	}
	card := map[string]gjson.Result{}
	gjson.GetBytes(raw, "card0").ForEach(func(k, v gjson.Result) bool {
		card[k.String()] = v
		return true
	})
	return GPUStats{
		Use:       card["GPU use (%)"].Int(),
		Temp:      card["Temperature (Sensor edge) (C)"].Float(),
		Power:     card["Current Socket Graphics Package Power (W)"].Float(),
		VRAMUsed:  card["VRAM Total Used Memory (B)"].Int(),
		VRAMTotal: card["VRAM Total Memory (B)"].Int(),
		SCLK:      clockMHz(card["sclk clock speed:"].String()),
		MCLK:      clockMHz(card["mclk clock speed:"].String()),
	}, true
}

// clockMHz parses rocm-smi clock values such as "(2541Mhz)".
func clockMHz(s string) *int64 {
	s = strings.Trim(s, "()Mhz")
	if s == "" {
		return nil
	}
	n := gjson.Parse(s)
	if n.Type != gjson.Number {
		return nil
	}
	v := n.Int()
	return &v
}

func (h *Handlers) gpu(w http.ResponseWriter, _ *http.Request) {
	fsys := h.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	raw, err := afero.ReadFile(fsys, h.GPUStatsFile)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "GPU stats not available")
		return
	}
	stats, ok := ParseGPUStats(raw)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "GPU stats not available")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
