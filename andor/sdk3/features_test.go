package sdk3

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func ExampleLookup() {
	k, _ := Lookup("ExposureTime")
	fmt.Println(k)
	_, err := Lookup("Exposure")
	fmt.Println(err)
	// Output:
	// Floating Point
	// feature Exposure not found in Features map, see andor/sdk3#Features for known features
}

func TestKindMarshalsByName(t *testing.T) {
	b, err := json.Marshal(map[string]Kind{"AOIWidth": Integer})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"AOIWidth":"Integer"}` {
		t.Errorf("got %s", b)
	}
	var back map[string]Kind
	if err := json.Unmarshal([]byte(`{"ExposureTime":"Floating Point"}`), &back); err != nil {
		t.Fatal(err)
	}
	if back["ExposureTime"] != FloatingPoint {
		t.Errorf("expected FloatingPoint, got %v", back["ExposureTime"])
	}
	if err := json.Unmarshal([]byte(`"Complex"`), new(Kind)); err == nil {
		t.Error("expected an error for an unknown kind name")
	}
}

func TestFeatureNamesSorted(t *testing.T) {
	names := FeatureNames()
	if len(names) != len(Features) {
		t.Fatalf("expected %d names, got %d", len(Features), len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("names not sorted at %d: %s >= %s", i, names[i-1], names[i])
		}
	}
}

func TestDRVError(t *testing.T) {
	if Error(0) != nil {
		t.Error("code 0 should not be an error")
	}
	err := Error(13)
	if err.Error() != "13 - AT_ERR_TIMED_OUT" {
		t.Errorf("got %q", err.Error())
	}
	var drv DRVError
	if !errors.As(enrich(err, "AT_WaitBuffer"), &drv) || !drv.Timeout() {
		t.Error("enriched timeout lost its DRVError")
	}
	if DRVError(5).Timeout() {
		t.Error("AT_ERR_NOT_WRITABLE is not a timeout")
	}
	if DRVError(555).Error() != "555 - UNKNOWN_ERROR_CODE" {
		t.Errorf("got %q", DRVError(555).Error())
	}
}
