package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_JSONDecoded(t *testing.T) {
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"s":"x","n":3,"f":1.5,"b":true,"z":null,"a":[1,"two"]}`), &m))

	v, err := FromAny(m)
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("x"), obj["s"])
	assert.Equal(t, Float(3), obj["n"], "json decodes all numbers as float64")
	assert.Equal(t, Float(1.5), obj["f"])
	assert.Equal(t, Bool(true), obj["b"])
	assert.Equal(t, Null{}, obj["z"])
	assert.Equal(t, Array{Float(1), String("two")}, obj["a"])
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	_, err := FromAny(make(chan int))
	assert.Error(t, err)
}

func TestObject_Clone_Deep(t *testing.T) {
	orig := Object{
		"nested": Object{"k": Int(1)},
		"list":   Array{Object{"i": Int(0)}},
	}

	clone := orig.Clone()
	clone["nested"].(Object)["k"] = Int(99)
	clone["list"].(Array)[0].(Object)["i"] = Int(99)

	assert.Equal(t, Int(1), orig["nested"].(Object)["k"], "clone must not alias nested objects")
	assert.Equal(t, Int(0), orig["list"].(Array)[0].(Object)["i"], "clone must not alias array elements")
}

func TestObject_SortedKeys_Stable(t *testing.T) {
	obj := Object{"b": Int(1), "a": Int(2), "c": Int(3)}

	assert.Equal(t, []string{"a", "b", "c"}, obj.SortedKeys())
}

func TestSourceRecord_LineageID(t *testing.T) {
	r := SourceRecord{SourceID: "github", NaturalID: "repo/42"}
	assert.Equal(t, "github/repo/42", r.LineageID())
}
