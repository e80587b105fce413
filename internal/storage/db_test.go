package db

import (
	"testing"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestApplyPoolOptions(t *testing.T) {
	config, err := pgxpool.ParseConfig("postgres://user@localhost:5432/tweets")
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}

	applyPoolOptions(config, PoolOptions{MaxConns: 7, SearchPath: "scratch"})

	if config.MaxConns != 7 {
		t.Errorf("MaxConns = %d, want 7", config.MaxConns)
	}

	if got := config.ConnConfig.RuntimeParams["search_path"]; got != "scratch" {
		t.Errorf("search_path = %q, want %q", got, "scratch")
	}
}

func TestSanitizeUTF8(t *testing.T) {
	if got := SanitizeUTF8("ok \xff text"); got != "ok  text" {
		t.Errorf("SanitizeUTF8() = %q", got)
	}

	if got := SanitizeUTF8("推文"); got != "推文" {
		t.Errorf("SanitizeUTF8() changed valid text: %q", got)
	}
}

func TestNullableConversions(t *testing.T) {
	if toText("").Valid {
		t.Error("empty string must map to NULL")
	}

	if toInt4Ptr(nil).Valid {
		t.Error("nil counter must map to NULL")
	}

	v := 3
	if got := fromInt4Ptr(toInt4Ptr(&v)); got == nil || *got != 3 {
		t.Errorf("int4 round trip = %v, want 3", got)
	}

	if toJSONB(nil) != nil {
		t.Error("nil payload must map to NULL")
	}
}

func TestToJSONB_DropsInvalidUTF8(t *testing.T) {
	got, ok := toJSONB([]byte("{\"full_text\":\"caf\xc3 ok\xff\"}")).([]byte)
	if !ok {
		t.Fatal("toJSONB() did not return bytes")
	}

	if !utf8.Valid(got) {
		t.Errorf("toJSONB() = %q, want valid UTF-8", got)
	}

	if want := `{"full_text":"caf ok"}`; string(got) != want {
		t.Errorf("toJSONB() = %q, want %q", got, want)
	}

	valid := []byte(`{"full_text":"推文"}`)
	if got := toJSONB(valid).([]byte); string(got) != string(valid) {
		t.Errorf("toJSONB() changed valid payload: %q", got)
	}
}
