package signal

import (
	"testing"

	"github.com/epic1st/mexcscanner/features"
)

func TestFromFeatureVectorMapsAllFields(t *testing.T) {
	fv := features.FeatureVector{
		Symbol: "BTCUSDT",
		VSR:    3.1,
		PM:     0.05,
		OBI:    -0.2,
		Spread: 0.01,
	}
	sig := FromFeatureVector(fv, 0.82, 12345.5)

	want := Signal{
		Symbol:      "BTCUSDT",
		VSR:         3.1,
		PM:          0.05,
		OBI:         -0.2,
		Spread:      0.01,
		Probability: 0.82,
		OriginTS:    12345.5,
	}
	if sig != want {
		t.Errorf("FromFeatureVector() = %+v, want %+v", sig, want)
	}
}
