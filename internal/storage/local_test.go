package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/maptoposter/poster-api/internal/storage"
)

var _ = Describe("local storage", func() {
	var (
		dir   string
		local *storage.Local
		ctx   = context.TODO()
	)

	BeforeEach(func() {
		var err error
		dir = filepath.Join(GinkgoT().TempDir(), "posters")
		local, err = storage.NewLocal(dir)
		Expect(err).To(BeNil())
		Expect(local.Type()).To(Equal("local"))
	})

	It("saves and opens an artifact", func() {
		Expect(local.Save(ctx, "job.png", strings.NewReader("png bytes"), 9)).To(Succeed())

		rc, err := local.Open(ctx, "job.png")
		Expect(err).To(BeNil())
		defer rc.Close()

		data, err := io.ReadAll(rc)
		Expect(err).To(BeNil())
		Expect(string(data)).To(Equal("png bytes"))

		entries, err := os.ReadDir(dir)
		Expect(err).To(BeNil())
		Expect(entries).To(HaveLen(1))
	})

	It("accepts an unknown size", func() {
		Expect(local.Save(ctx, "job.png", bytes.NewReader([]byte("abc")), -1)).To(Succeed())
	})

	It("rejects a short write", func() {
		Expect(local.Save(ctx, "job.png", strings.NewReader("abc"), 10)).NotTo(Succeed())

		_, err := local.Open(ctx, "job.png")
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
	})

	It("reports missing artifacts", func() {
		_, err := local.Open(ctx, "missing.png")
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
	})

	It("rejects names escaping the directory", func() {
		for _, name := range []string{"../evil.png", "a/b.png", "", ".."} {
			Expect(local.Save(ctx, name, strings.NewReader("x"), 1)).NotTo(Succeed(), name)
			_, err := local.Open(ctx, name)
			Expect(err).NotTo(BeNil(), name)
		}
	})

	It("deletes artifacts and ignores missing ones", func() {
		Expect(local.Save(ctx, "job.png", strings.NewReader("x"), 1)).To(Succeed())
		Expect(local.Delete(ctx, "job.png")).To(Succeed())
		Expect(local.Delete(ctx, "job.png")).To(Succeed())

		_, err := local.Open(ctx, "job.png")
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
	})

	It("prunes old artifacts only", func() {
		Expect(local.Save(ctx, "old.png", strings.NewReader("x"), 1)).To(Succeed())
		Expect(local.Save(ctx, "new.png", strings.NewReader("x"), 1)).To(Succeed())

		past := time.Now().Add(-48 * time.Hour)
		Expect(os.Chtimes(filepath.Join(dir, "old.png"), past, past)).To(Succeed())

		removed, err := local.Prune(ctx, time.Now().Add(-24*time.Hour))
		Expect(err).To(BeNil())
		Expect(removed).To(Equal(1))

		_, err = local.Open(ctx, "old.png")
		Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		_, err = local.Open(ctx, "new.png")
		Expect(err).To(BeNil())
	})

	It("stops saving when the context is cancelled", func() {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(local.Save(cancelled, "job.png", strings.NewReader("x"), 1)).NotTo(Succeed())
	})
})
