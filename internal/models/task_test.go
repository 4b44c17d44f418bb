package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngredientsScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int
	}{
		{"nil", nil, 0},
		{"empty string", "", 0},
		{"array bytes", []byte(`[{"name":"Tomato","quantity":2,"unit":"pc","category":"produce"}]`), 1},
		{"array string", `[{"name":"Milk"},{"name":"Eggs","quantity":6}]`, 2},
		{"double encoded", `"[{\"name\":\"Rice\",\"quantity\":1,\"unit\":\"kg\"}]"`, 1},
		{"json null", "null", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in Ingredients
			require.NoError(t, in.Scan(tt.value))
			assert.Len(t, in, tt.want)
		})
	}
}

func TestIngredientsScanDoubleEncodedKeepsFields(t *testing.T) {
	var in Ingredients
	require.NoError(t, in.Scan(`"[{\"name\":\"Rice\",\"quantity\":1.5,\"unit\":\"kg\",\"category\":\"grains\"}]"`))

	require.Len(t, in, 1)
	assert.Equal(t, "Rice", in[0].Name)
	require.NotNil(t, in[0].Quantity)
	assert.Equal(t, 1.5, *in[0].Quantity)
	require.NotNil(t, in[0].Unit)
	assert.Equal(t, "kg", *in[0].Unit)
	assert.Equal(t, "grains", in[0].Category)
}

func TestIngredientsScanRejectsGarbage(t *testing.T) {
	var in Ingredients
	assert.Error(t, in.Scan(`{"name":"not a list"}`))
	assert.Error(t, in.Scan(`"just text"`))
	assert.Error(t, in.Scan(42))
}

func TestIngredientsUnitPresenceSurvivesRoundTrip(t *testing.T) {
	litre := "L"
	in := Ingredients{
		{Name: "Milk", Unit: &litre},
		{Name: "Milk"},
	}

	v, err := in.Value()
	require.NoError(t, err)

	var out Ingredients
	require.NoError(t, out.Scan(v))
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Unit)
	assert.Nil(t, out[1].Unit)
	assert.Nil(t, out[1].Quantity)
}

func TestIngredientsJSON(t *testing.T) {
	var body struct {
		Ingredients Ingredients `json:"ingredients"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"ingredients":"[{\"name\":\"Flour\"}]"}`), &body))
	require.Len(t, body.Ingredients, 1)
	assert.Equal(t, "Flour", body.Ingredients[0].Name)

	data, err := json.Marshal(Task{})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ingredients":[]`)
}
