package service_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"Tradelink/internal/model"
	"Tradelink/internal/service"
)

func pngBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var _ = Describe("AttachmentPipeline", func() {
	var (
		ctx      context.Context
		storage  *mockObjectStorage
		ledger   *mockLedger
		pipeline *service.AttachmentPipeline
	)

	limits := service.UploadLimits{
		MaxSizeBytes:        1 << 20,
		AllowedMimePrefixes: []string{"image/", "audio/", "video/", "application/pdf"},
		ThumbnailSize:       64,
		MaxConcurrent:       2,
	}

	fileOf := func(name, mimeType string, data []byte) service.File {
		return service.File{
			Name:       name,
			Size:       int64(len(data)),
			MimeType:   mimeType,
			Reader:     bytes.NewReader(data),
			UploaderID: "c1",
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		storage = &mockObjectStorage{}
		ledger = newMockLedger()
		pipeline = service.NewAttachmentPipeline(storage, ledger, limits)
	})

	Describe("ClassifyKind", func() {
		DescribeTable("maps MIME types to message kinds",
			func(mimeType string, kind model.Kind) {
				Expect(service.ClassifyKind(mimeType)).To(Equal(kind))
			},
			Entry("png", "image/png", model.KindImage),
			Entry("upper case jpeg", "IMAGE/JPEG", model.KindImage),
			Entry("mp4", "video/mp4", model.KindVideo),
			Entry("mpeg audio", "audio/mpeg", model.KindAudio),
			Entry("pdf", "application/pdf", model.KindDocument),
			Entry("empty", "", model.KindDocument),
		)
	})

	Describe("Validate", func() {
		It("rejects oversized files before touching storage", func() {
			file := fileOf("big.pdf", "application/pdf", make([]byte, 10))
			file.Size = limits.MaxSizeBytes + 1

			_, err := pipeline.Start(ctx, file)

			Expect(err).To(MatchError(service.ErrFileTooLarge))
			Expect(err.Error()).To(ContainSubstring("MB"))
			Expect(storage.putCount()).To(BeZero())
		})

		It("rejects MIME types outside the allow list", func() {
			_, err := pipeline.Start(ctx, fileOf("run.exe", "application/x-msdownload", []byte("MZ")))

			Expect(err).To(MatchError(service.ErrUnsupportedFileType))
			Expect(storage.putCount()).To(BeZero())
		})

		It("rejects empty files", func() {
			_, err := pipeline.Validate(fileOf("empty.pdf", "application/pdf", nil))
			Expect(err).To(MatchError(service.ErrParamInvalid))
		})

		It("requires voice notes to be audio", func() {
			file := service.NewVoiceFile(bytes.NewReader([]byte("data")), 4, "video/mp4", 2, time.Now())
			_, err := pipeline.Validate(file)
			Expect(err).To(MatchError(service.ErrUnsupportedFileType))
		})

		It("assigns a local id and a pending status", func() {
			p, err := pipeline.Validate(fileOf("a.pdf", "Application/PDF", []byte("%PDF")))

			Expect(err).NotTo(HaveOccurred())
			Expect(p.LocalID).NotTo(BeEmpty())
			Expect(p.Status).To(Equal(model.UploadPending))
			Expect(p.MimeType).To(Equal("application/pdf"))
			Expect(p.Kind).To(Equal(model.KindDocument))
		})
	})

	Describe("UploadWithProgress", func() {
		It("reports monotonic progress and completes with a final URL", func() {
			var seen []model.PendingUpload
			att, err := pipeline.UploadWithProgress(ctx, fileOf("manual.pdf", "application/pdf", make([]byte, 1000)), func(p model.PendingUpload) {
				seen = append(seen, p)
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(att.URL).To(HavePrefix("https://cdn.test/chat/"))
			Expect(att.URL).To(HaveSuffix(".pdf"))
			Expect(att.FileName).To(Equal("manual.pdf"))
			Expect(att.FileSize).To(Equal(int64(1000)))

			Expect(seen[0].Status).To(Equal(model.UploadPending))
			last := seen[len(seen)-1]
			Expect(last.Status).To(Equal(model.UploadComplete))
			Expect(last.ProgressPercent).To(Equal(100))
			Expect(last.Result).NotTo(BeNil())

			for i := 1; i < len(seen); i++ {
				Expect(seen[i].ProgressPercent).To(BeNumerically(">=", seen[i-1].ProgressPercent))
				Expect(seen[i].LocalID).To(Equal(seen[0].LocalID))
			}
			Expect(seen).To(ContainElement(HaveField("ProgressPercent", 50)))

			Expect(ledger.tracked).To(HaveKey(att.URL))
			Expect(ledger.tracked[att.URL].UploaderID).To(Equal("c1"))
		})

		It("ends in the error state when storage fails", func() {
			storage.putFn = func(_ context.Context, _ string, _ io.Reader, _ int64, _ string, _ io.Reader) (string, error) {
				return "", errors.New("connection reset")
			}

			var last model.PendingUpload
			att, err := pipeline.UploadWithProgress(ctx, fileOf("manual.pdf", "application/pdf", []byte("%PDF-1.4")), func(p model.PendingUpload) {
				last = p
			})

			Expect(att).To(BeNil())
			Expect(err).To(MatchError(service.ErrUploadFailed))
			Expect(last.Status).To(Equal(model.UploadError))
			Expect(last.ErrorMessage).NotTo(BeEmpty())
			Expect(last.Result).To(BeNil())
			Expect(ledger.tracked).To(BeEmpty())
		})

		It("stores a thumbnail next to uploaded images", func() {
			att, err := pipeline.Upload(ctx, fileOf("photo.png", "image/png", pngBytes(200, 100)))

			Expect(err).NotTo(HaveOccurred())
			Expect(storage.putCount()).To(Equal(2))
			Expect(att.ThumbnailURL).To(HaveSuffix("_thumb.jpg"))
			Expect(ledger.tracked[att.URL].ThumbnailKey).NotTo(BeEmpty())
		})

		It("still completes when the thumbnail cannot be generated", func() {
			att, err := pipeline.Upload(ctx, fileOf("broken.png", "image/png", []byte("not really a png")))

			Expect(err).NotTo(HaveOccurred())
			Expect(att.ThumbnailURL).To(BeEmpty())
		})
	})

	Describe("NewVoiceFile", func() {
		It("names the recording by timestamp and extension", func() {
			at := time.UnixMilli(1700000000123)
			file := service.NewVoiceFile(bytes.NewReader([]byte("ogg")), 3, "audio/ogg", 4.2, at)

			Expect(file.Name).To(Equal("voice-1700000000123.ogg"))
			Expect(file.Voice).To(BeTrue())
			Expect(file.DurationSeconds).To(Equal(4.2))
		})

		It("defaults to webm and clamps negative durations", func() {
			file := service.NewVoiceFile(bytes.NewReader([]byte("x")), 1, "audio/x-unknown", -1, time.UnixMilli(5))

			Expect(file.Name).To(Equal("voice-5.webm"))
			Expect(file.DurationSeconds).To(BeZero())
		})

		It("uploads as a voice attachment", func() {
			file := service.NewVoiceFile(bytes.NewReader([]byte("OggS....")), 8, "audio/ogg", 1.5, time.Now())
			p, err := pipeline.Validate(file)

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Kind).To(Equal(model.KindVoice))

			att, err := pipeline.Upload(ctx, file)
			Expect(err).NotTo(HaveOccurred())
			Expect(att.DurationSeconds).To(Equal(1.5))
		})
	})

	Describe("UploadAll", func() {
		It("keeps failures independent", func() {
			storage.putFn = func(_ context.Context, objectName string, reader io.Reader, _ int64, _ string, _ io.Reader) (string, error) {
				if strings.HasSuffix(objectName, ".mp4") {
					return "", errors.New("quota exceeded")
				}
				_, _ = io.Copy(io.Discard, reader)
				return objectName, nil
			}
			files := []service.File{
				fileOf("a.pdf", "application/pdf", []byte("%PDF")),
				fileOf("b.mp4", "video/mp4", []byte("....ftyp")),
				fileOf("c.pdf", "application/pdf", []byte("%PDF")),
			}
			files[0].LocalID = "a"
			files[1].LocalID = "b"
			files[2].LocalID = "c"

			results := pipeline.UploadAll(ctx, files)

			Expect(results).To(HaveLen(3))
			Expect(results[0].Err).NotTo(HaveOccurred())
			Expect(results[0].LocalID).To(Equal("a"))
			Expect(results[1].Err).To(MatchError(service.ErrUploadFailed))
			Expect(results[1].Attachment).To(BeNil())
			Expect(results[2].Err).NotTo(HaveOccurred())
		})
	})

	It("removes released URLs from the ledger", func() {
		att, err := pipeline.Upload(ctx, fileOf("a.pdf", "application/pdf", []byte("%PDF")))
		Expect(err).NotTo(HaveOccurred())

		pipeline.Release(ctx, att.URL)

		Expect(ledger.tracked).NotTo(HaveKey(att.URL))
	})
})
