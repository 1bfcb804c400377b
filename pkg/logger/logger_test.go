package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
	Get().Info(context.Background(), "test message", String("k", "v"))
}

func TestLoggerNamed(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	named := Named("test")
	if named == nil {
		t.Fatal("named logger is nil")
	}
	named.Info(context.Background(), "test message")
}

func TestJSONFormat(t *testing.T) {
	Convey("Given a JSON logger", t, func() {
		var buf bytes.Buffer
		So(InitWith(&buf, FormatJSON), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging a warning with fields", func() {
			Named("cache").With(String("bucket", "b1")).Warn(ctx, "slow read",
				Int("attempt", 2), Error(errors.New("boom")))

			var entry map[string]any
			So(json.Unmarshal(buf.Bytes(), &entry), ShouldBeNil)

			Convey("Then severity and message use platform keys", func() {
				So(entry["severity"], ShouldEqual, "WARNING")
				So(entry["message"], ShouldEqual, "slow read")
			})

			Convey("And fields are flattened into the entry", func() {
				So(entry["component"], ShouldEqual, "cache")
				So(entry["bucket"], ShouldEqual, "b1")
				So(entry["attempt"], ShouldEqual, float64(2))
				So(entry["error"], ShouldEqual, "boom")
				So(entry["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level filters out debug", func() {
			So(SetLevelString("info"), ShouldBeNil)
			Get().Debug(ctx, "hidden")
			So(buf.Len(), ShouldEqual, 0)
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		So(SetLevelString("DEBUG"), ShouldBeNil)
		So(SetLevelString(" warning "), ShouldBeNil)
		So(SetLevelString(""), ShouldBeNil)
		err := SetLevelString("loud")
		So(err, ShouldNotBeNil)
		So(strings.Contains(err.Error(), "unknown log level"), ShouldBeTrue)
	})

	Convey("Given an unknown format", t, func() {
		So(InitWith(&bytes.Buffer{}, Format("xml")), ShouldNotBeNil)
		So(Init(), ShouldBeNil)
	})
}
