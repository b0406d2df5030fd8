package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapters(list ...Adapter) Enumerator {
	return EnumeratorFunc(func(context.Context) ([]Adapter, error) {
		return list, nil
	})
}

func TestEnumerateAlwaysIncludesCPUFirst(t *testing.T) {
	devices, err := Enumerate(context.Background(), nil, Level12_0)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, KindCPU, devices[0].Kind)
}

func TestEnumerateFiltersByFeatureLevel(t *testing.T) {
	enum := adapters(
		Adapter{Name: "old", Kind: KindGPU, FeatureLevel: Level11_0},
		Adapter{Name: "exact", Kind: KindGPU, FeatureLevel: Level12_0},
		Adapter{Name: "new", Kind: KindGPU, FeatureLevel: Level12_1},
		Adapter{Name: "npu", Kind: KindAccelerator},
		Adapter{Name: "swiftshader", Kind: KindCPU},
	)

	devices, err := Enumerate(context.Background(), enum, Level12_0)
	require.NoError(t, err)

	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"CPU", "exact", "new", "npu"}, names)
}

func TestEnumerateSurvivesAdapterFailure(t *testing.T) {
	enum := EnumeratorFunc(func(context.Context) ([]Adapter, error) {
		return nil, errors.New("driver exploded")
	})
	devices, err := Enumerate(context.Background(), enum, Level9_1)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestFilterNoDevices(t *testing.T) {
	_, err := Filter([]ExecutionDevice{CPU()}, KindGPU)
	assert.ErrorIs(t, err, ErrNoDevices)

	gpus, err := Filter([]ExecutionDevice{CPU(), GPU("g", Level12_0)}, KindGPU)
	require.NoError(t, err)
	assert.Len(t, gpus, 1)
}

func TestSelectNeverSubstitutes(t *testing.T) {
	_, err := Select(nil, 0)
	assert.ErrorIs(t, err, ErrNoDevices)

	_, err = Select([]ExecutionDevice{CPU()}, 1)
	assert.Error(t, err)

	d, err := Select([]ExecutionDevice{CPU(), GPU("g", Level12_0)}, 1)
	require.NoError(t, err)
	assert.Equal(t, "g", d.Name)
}

func TestFeatureLevelOrderingAndParsing(t *testing.T) {
	assert.True(t, Level12_0 > Level11_1)
	assert.True(t, Level9_3 < Level10_0)

	for in, want := range map[string]FeatureLevel{"12_0": Level12_0, "11.1": Level11_1, "10": Level10_0} {
		got, err := ParseFeatureLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFeatureLevel("13_7")
	assert.Error(t, err)
	assert.Equal(t, "12_1", Level12_1.String())
}

func TestMeetsLevel(t *testing.T) {
	assert.True(t, CPU().MeetsLevel(Level12_2))
	assert.True(t, Accelerator("npu").MeetsLevel(Level12_2))
	assert.False(t, GPU("g", Level11_0).MeetsLevel(Level12_0))
	assert.True(t, GPU("g", Level12_0).MeetsLevel(Level12_0))
}
