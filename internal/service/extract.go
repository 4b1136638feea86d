package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Extractor is one named strategy for pulling a string out of a response's data object
type Extractor struct {
	Name    string
	Extract func(doc interface{}) string
}

// TaskIDExtractors are tried in order against the job creation response's data object
var TaskIDExtractors = []Extractor{
	{Name: "data.taskId", Extract: path("taskId")},
	{Name: "data.task_id", Extract: path("task_id")},
	{Name: "data.id", Extract: path("id")},
}

// AudioURLExtractors are tried in order against a successful status response's data object
var AudioURLExtractors = []Extractor{
	{Name: "data.response.sunoData[0].audioUrl", Extract: path("response", "sunoData", 0, "audioUrl")},
	{Name: "data.audioUrl", Extract: path("audioUrl")},
	{Name: "data.response.audioUrl", Extract: path("response", "audioUrl")},
	{Name: "data.response.results[0].audioUrl", Extract: firstOf(
		path("response", "results", 0, "audioUrl"),
		path("response", "results", 0, "audio_url"),
	)},
}

// FirstMatch returns the first non-empty value produced by the extractors,
// along with the name of the strategy that produced it.
func FirstMatch(extractors []Extractor, doc interface{}) (value string, strategy string, ok bool) {
	for _, e := range extractors {
		if v := e.Extract(doc); v != "" {
			return v, e.Name, true
		}
	}
	return "", "", false
}

// decodeDocument decodes a raw JSON value keeping numbers as json.Number
func decodeDocument(raw json.RawMessage) (interface{}, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid response data: %w", err)
	}
	return doc, nil
}

// path walks object keys (string) and array indexes (int) and returns the
// leaf as a string. Missing segments and non-scalar leaves yield "".
func path(segments ...interface{}) func(doc interface{}) string {
	return func(doc interface{}) string {
		cur := doc
		for _, seg := range segments {
			switch key := seg.(type) {
			case string:
				obj, ok := cur.(map[string]interface{})
				if !ok {
					return ""
				}
				cur = obj[key]
			case int:
				arr, ok := cur.([]interface{})
				if !ok || key >= len(arr) {
					return ""
				}
				cur = arr[key]
			}
		}

		switch leaf := cur.(type) {
		case string:
			return strings.TrimSpace(leaf)
		case json.Number:
			return leaf.String()
		}
		return ""
	}
}

func firstOf(extractors ...func(doc interface{}) string) func(doc interface{}) string {
	return func(doc interface{}) string {
		for _, extract := range extractors {
			if v := extract(doc); v != "" {
				return v
			}
		}
		return ""
	}
}
