package config_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"Tradelink/internal/api/config"
)

var _ = Describe("UploadConfig.MaxSizeBytes", func() {
	DescribeTable("parses human sizes",
		func(raw string, want int64) {
			Expect(config.UploadConfig{MaxSize: raw}.MaxSizeBytes()).To(Equal(want))
		},
		Entry("decimal megabytes", "25MB", int64(25_000_000)),
		Entry("binary mebibytes", "1MiB", int64(1<<20)),
		Entry("plain bytes", "1024", int64(1024)),
		Entry("surrounding spaces", "  2KB ", int64(2000)),
		Entry("empty falls back", "", int64(25<<20)),
		Entry("garbage falls back", "lots", int64(25<<20)),
	)
})
