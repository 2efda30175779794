package upload_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/client"
	"github.com/jeevanrajendraprasad/invoice-consolidation-app/internal/upload"
)

type fakeUploader struct {
	mu       sync.Mutex
	calls    int
	sent     [][]string
	response *client.UploadResponse
	err      error
	steps    [][2]int64
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, files []client.UploadFile, progress client.ProgressFunc) (*client.UploadResponse, error) {
	f.mu.Lock()
	f.calls++
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name)
	}
	f.sent = append(f.sent, names)
	f.mu.Unlock()

	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	for _, s := range f.steps {
		progress(s[0], s[1])
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.response == nil {
		return &client.UploadResponse{}, nil
	}
	return f.response, nil
}

func (f *fakeUploader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func memOpener(path string) (io.ReadCloser, error) {
	if strings.Contains(path, "unreadable") {
		return nil, os.ErrPermission
	}
	return io.NopCloser(strings.NewReader("content of " + path)), nil
}

func file(name string) upload.File {
	return upload.File{Path: "/tmp/" + name, Name: name, Size: 10, ContentType: upload.ContentTypeFor(name)}
}

func records(n int) *int { return &n }

var _ = Describe("Pipeline", func() {
	var (
		uploader *fakeUploader
		pipeline *upload.Pipeline
		ctx      context.Context
	)

	BeforeEach(func() {
		uploader = &fakeUploader{}
		ctx = context.Background()
		var err error
		pipeline, err = upload.NewPipeline(uploader, upload.WithOpener(memOpener))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Add", func() {
		It("queues accepted files and reports rejected ones as a count", func() {
			sel, err := pipeline.Add(file("a.pdf"), file("setup.exe"), file("b.csv"))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Accepted).To(HaveLen(2))
			Expect(sel.Rejected).To(HaveLen(1))

			notice := sel.Notice()
			Expect(notice).To(HaveOccurred())
			Expect(notice.Error()).To(Equal("1 file(s) rejected — unsupported type."))
			Expect(errors.Is(notice, upload.ErrUnsupportedType)).To(BeTrue())
			Expect(upload.IsValidation(notice)).To(BeTrue())

			tasks := pipeline.Tasks()
			Expect(tasks).To(HaveLen(2))
			for _, t := range tasks {
				Expect(t.State).To(Equal(upload.StateQueued))
				Expect(t.ID).NotTo(BeEmpty())
			}
		})

		It("queues nothing when every file is rejected", func() {
			sel, err := pipeline.Add(file("setup.exe"))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Accepted).To(BeEmpty())
			Expect(sel.Notice()).To(HaveOccurred())
			Expect(pipeline.Tasks()).To(BeEmpty())
		})

		It("has no notice when everything is accepted", func() {
			sel, err := pipeline.Add(file("a.png"))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Notice()).NotTo(HaveOccurred())
		})

		It("clears the previous batch's results", func() {
			_, err := pipeline.Add(file("a.pdf"))
			Expect(err).NotTo(HaveOccurred())
			_, err = pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(pipeline.Results()).NotTo(BeNil())

			_, err = pipeline.Add(file("b.pdf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(pipeline.Results()).To(BeNil())
		})
	})

	Describe("Remove and Clear", func() {
		It("removes a queued task by id", func() {
			sel, _ := pipeline.Add(file("a.pdf"), file("b.pdf"))
			Expect(pipeline.Remove(sel.Accepted[0].ID)).To(Succeed())

			tasks := pipeline.Tasks()
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].Name).To(Equal("b.pdf"))
		})

		It("fails for unknown ids", func() {
			Expect(pipeline.Remove("nope")).To(MatchError(upload.ErrTaskNotFound))
		})

		It("clears the queue", func() {
			_, _ = pipeline.Add(file("a.pdf"), file("b.pdf"))
			Expect(pipeline.Clear()).To(Succeed())
			Expect(pipeline.Tasks()).To(BeEmpty())
		})
	})

	Describe("Submit", func() {
		It("refuses an empty queue without sending anything", func() {
			result, err := pipeline.Submit(ctx)
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(upload.ErrEmptyQueue))
			Expect(upload.IsValidation(err)).To(BeTrue())
			Expect(uploader.Calls()).To(Equal(0))
			Expect(pipeline.InFlight()).To(BeFalse())
		})

		It("resolves a mixed batch per file and resets the queue", func() {
			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "a.pdf", Status: "success", RecordsExtracted: records(3)},
				{Filename: "b.csv", Status: "rejected", Reason: "Unsupported file type"},
				{Filename: "c.png", Status: "failed", Reason: "OCR error"},
			}}
			_, _ = pipeline.Add(file("a.pdf"), file("b.csv"), file("c.png"))

			result, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(uploader.sent).To(Equal([][]string{{"a.pdf", "b.csv", "c.png"}}))

			Expect(result.Files).To(HaveLen(3))
			Expect(result.Files[0].Outcome).To(Equal(upload.Success{Records: 3}))
			Expect(result.Files[0].Outcome.Describe()).To(Equal("✓ 3 record(s) extracted"))
			Expect(result.Files[1].Outcome).To(Equal(upload.Rejected{Reason: "Unsupported file type"}))
			Expect(result.Files[2].Outcome).To(Equal(upload.Failed{Kind: "failed", Reason: "OCR error"}))

			succeeded, rejected, failed := result.Counts()
			Expect([]int{succeeded, rejected, failed}).To(Equal([]int{1, 1, 1}))
			Expect(result.RecordsExtracted()).To(Equal(3))
			Expect(result.TransportFailed()).To(BeFalse())

			Expect(pipeline.Tasks()).To(BeEmpty())
			Expect(pipeline.Progress()).To(Equal(0))
			Expect(pipeline.InFlight()).To(BeFalse())
			Expect(pipeline.Results()).To(Equal(result))
		})

		It("matches results by filename before position", func() {
			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "b.pdf", Status: "success", RecordsExtracted: records(2)},
				{Filename: "renamed.pdf", Status: "success", RecordsExtracted: records(7)},
			}}
			_, _ = pipeline.Add(file("a.pdf"), file("b.pdf"))

			result, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Files[0].Filename).To(Equal("a.pdf"))
			Expect(result.Files[0].Outcome).To(Equal(upload.Success{Records: 7}))
			Expect(result.Files[1].Filename).To(Equal("b.pdf"))
			Expect(result.Files[1].Outcome).To(Equal(upload.Success{Records: 2}))
		})

		It("fails files the backend said nothing about", func() {
			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "a.pdf", Status: "success", RecordsExtracted: records(1)},
			}}
			_, _ = pipeline.Add(file("a.pdf"), file("b.pdf"))

			result, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Files[1].Outcome).To(BeAssignableToTypeOf(upload.Failed{}))
			Expect(result.Files[1].Outcome.(upload.Failed).Kind).To(Equal(upload.KindMissing))
		})

		It("keeps results for files it never sent", func() {
			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "a.pdf", Status: "success", RecordsExtracted: records(1)},
				{Filename: "inner.pdf", Status: "success", RecordsExtracted: records(4)},
			}}
			_, _ = pipeline.Add(file("a.pdf"))

			result, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Files).To(HaveLen(2))
			Expect(result.Files[1].TaskID).To(BeEmpty())
			Expect(result.Files[1].Filename).To(Equal("inner.pdf"))
			Expect(result.RecordsExtracted()).To(Equal(5))
		})

		It("fails unreadable files locally and sends the rest", func() {
			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "a.pdf", Status: "success", RecordsExtracted: records(1)},
			}}
			_, _ = pipeline.Add(file("a.pdf"), file("unreadable.pdf"))

			result, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(uploader.sent).To(Equal([][]string{{"a.pdf"}}))
			Expect(result.Files[1].Outcome.(upload.Failed).Kind).To(Equal(upload.KindUnreadable))
		})

		It("reports monotonic clamped progress", func() {
			var seen []int
			pipeline, _ = upload.NewPipeline(uploader,
				upload.WithOpener(memOpener),
				upload.WithProgressObserver(func(pct int) { seen = append(seen, pct) }),
			)
			uploader.steps = [][2]int64{{0, 0}, {0, 200}, {50, 200}, {40, 200}, {101, 200}, {200, 200}, {300, 200}}
			_, _ = pipeline.Add(file("a.pdf"))

			_, err := pipeline.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]int{25, 51, 100}))
			Expect(pipeline.Progress()).To(Equal(0))
		})

		It("rejects a second submit while a batch is in flight", func() {
			uploader.block = make(chan struct{})
			uploader.started = make(chan struct{})
			_, _ = pipeline.Add(file("a.pdf"))

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := pipeline.Submit(ctx)
				done <- err
			}()
			Eventually(uploader.started).Should(BeClosed())
			Expect(pipeline.InFlight()).To(BeTrue())

			_, err := pipeline.Submit(ctx)
			Expect(err).To(MatchError(upload.ErrUploadInProgress))

			By("queueing more files while the batch is in flight")
			sel, err := pipeline.Add(file("late.pdf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(pipeline.Remove(pipeline.Tasks()[0].ID)).To(MatchError(upload.ErrTaskNotQueued))

			close(uploader.block)
			Eventually(done).Should(Receive(BeNil()))
			Expect(uploader.Calls()).To(Equal(1))

			tasks := pipeline.Tasks()
			Expect(tasks).To(HaveLen(1))
			Expect(tasks[0].ID).To(Equal(sel.Accepted[0].ID))
			Expect(tasks[0].State).To(Equal(upload.StateQueued))
		})

		Context("when the backend is unreachable", func() {
			BeforeEach(func() {
				uploader.err = client.ErrNoResponse
			})

			It("fails every file and clears the queue by default", func() {
				_, _ = pipeline.Add(file("a.pdf"), file("b.pdf"))

				result, err := pipeline.Submit(ctx)
				var te *upload.TransportError
				Expect(errors.As(err, &te)).To(BeTrue())
				Expect(te.Files).To(Equal(2))
				Expect(errors.Is(err, client.ErrNoResponse)).To(BeTrue())

				Expect(result.TransportFailed()).To(BeTrue())
				Expect(result.Files).To(HaveLen(2))
				for _, f := range result.Files {
					Expect(f.Outcome).To(BeAssignableToTypeOf(upload.TransportFailure{}))
					Expect(f.Outcome.State()).To(Equal(upload.StateFailed))
				}
				Expect(pipeline.Tasks()).To(BeEmpty())
				Expect(pipeline.InFlight()).To(BeFalse())
			})

			It("keeps the files queued with ResetOnResolution", func() {
				pipeline, _ = upload.NewPipeline(uploader,
					upload.WithOpener(memOpener),
					upload.WithResetPolicy(upload.ResetOnResolution),
				)
				_, _ = pipeline.Add(file("a.pdf"), file("b.pdf"))

				_, err := pipeline.Submit(ctx)
				Expect(err).To(HaveOccurred())

				tasks := pipeline.Tasks()
				Expect(tasks).To(HaveLen(2))
				for _, t := range tasks {
					Expect(t.State).To(Equal(upload.StateQueued))
				}

				By("retrying once the backend is back")
				uploader.err = nil
				_, err = pipeline.Submit(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(uploader.Calls()).To(Equal(2))
				Expect(pipeline.Tasks()).To(BeEmpty())
			})
		})
	})

	Describe("with a BoltStore", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "queue", "queue.db")
		})

		It("persists the queue across pipelines", func() {
			store, err := upload.NewBoltStore(path)
			Expect(err).NotTo(HaveOccurred())
			p, err := upload.NewPipeline(uploader, upload.WithStore(store), upload.WithOpener(memOpener))
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Add(file("a.pdf"), file("b.pdf"), file("c.pdf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Remove(p.Tasks()[1].ID)).To(Succeed())
			Expect(store.Close()).To(Succeed())

			store, err = upload.NewBoltStore(path)
			Expect(err).NotTo(HaveOccurred())
			defer store.Close()
			p, err = upload.NewPipeline(uploader, upload.WithStore(store), upload.WithOpener(memOpener))
			Expect(err).NotTo(HaveOccurred())

			tasks := p.Tasks()
			Expect(tasks).To(HaveLen(2))
			Expect(tasks[0].Name).To(Equal("a.pdf"))
			Expect(tasks[1].Name).To(Equal("c.pdf"))

			_, err = p.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			loaded, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(BeEmpty())
		})

		It("reads relatively added files after the working directory changes", func() {
			filesDir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(filesDir, "inv.pdf"), []byte("%PDF-1.4"), 0644)).To(Succeed())

			wd, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.Chdir, wd)
			Expect(os.Chdir(filesDir)).To(Succeed())

			f, err := upload.FileFromPath("inv.pdf")
			Expect(err).NotTo(HaveOccurred())

			store, err := upload.NewBoltStore(path)
			Expect(err).NotTo(HaveOccurred())
			p, err := upload.NewPipeline(uploader, upload.WithStore(store))
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Add(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Close()).To(Succeed())

			Expect(os.Chdir(GinkgoT().TempDir())).To(Succeed())

			store, err = upload.NewBoltStore(path)
			Expect(err).NotTo(HaveOccurred())
			defer store.Close()
			p, err = upload.NewPipeline(uploader, upload.WithStore(store))
			Expect(err).NotTo(HaveOccurred())

			uploader.response = &client.UploadResponse{Results: []client.FileResult{
				{Filename: "inv.pdf", Status: "success", RecordsExtracted: records(1)},
			}}
			result, err := p.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(uploader.Calls()).To(Equal(1))
			Expect(result.Files).To(HaveLen(1))
			Expect(result.Files[0].Outcome).To(Equal(upload.Success{Records: 1}))
		})

		It("requeues tasks left submitted by an interrupted run", func() {
			store, err := upload.NewBoltStore(path)
			Expect(err).NotTo(HaveOccurred())
			defer store.Close()
			Expect(store.Save([]upload.Task{
				{ID: "1", Name: "a.pdf", Path: "/tmp/a.pdf", State: upload.StateSubmitted},
			})).To(Succeed())

			p, err := upload.NewPipeline(uploader, upload.WithStore(store))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Tasks()[0].State).To(Equal(upload.StateQueued))
		})
	})
})
