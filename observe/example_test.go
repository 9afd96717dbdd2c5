package observe_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/zerocache/observe"
)

func ExampleCallMeta_SpanName() {
	fmt.Println(observe.CallMeta{Op: "get"}.SpanName())
	fmt.Println(observe.CallMeta{}.SpanName())
	// Output:
	// cache.get
	// cache.call
}

func ExampleNewLoggerWithWriter() {
	var buf bytes.Buffer
	logger := observe.NewLoggerWithWriter("warn", &buf).
		WithCall(observe.CallMeta{Op: "call", ID: "profile"})

	ctx := context.Background()
	logger.Debug(ctx, "cache lookup")
	logger.Warn(ctx, "cache fallback",
		observe.F("stage", "write"),
		observe.F("token", "s3cret"))

	var entry map[string]any
	_ = json.Unmarshal(buf.Bytes(), &entry)
	fmt.Println(entry["level"], entry["msg"], entry["cache.id"], entry["stage"], entry["token"])
	// Output: warn cache fallback profile write [REDACTED]
}
