package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose prefix", `Here is the assessment: {"score": 0.5} Hope that helps!`, `{"score": 0.5}`},
		{"nested objects", `{"outer": {"inner": {"x": 1}}}`, `{"outer": {"inner": {"x": 1}}}`},
		{"braces in strings", `{"title": "fix {broken} parser"}`, `{"title": "fix {broken} parser"}`},
		{"escaped quote in string", `{"msg": "say \"hi\" {now}"}`, `{"msg": "say \"hi\" {now}"}`},
		{"trailing garbage", `{"a":1}{"b":2}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstJSONObject(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)))
		})
	}
}

func TestFirstJSONObject_Errors(t *testing.T) {
	_, err := FirstJSONObject("no json here")
	assert.Error(t, err)

	_, err = FirstJSONObject(`{"unterminated": true`)
	assert.Error(t, err)

	_, err = FirstJSONObject("")
	assert.Error(t, err)
}
