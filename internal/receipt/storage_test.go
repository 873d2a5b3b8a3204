package receipt

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "uploads"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			name      string
			savedName string
			err       error
		)

		BeforeEach(func() {
			name = "abc_receipt.jpg"
		})

		JustBeforeEach(func() {
			savedName, err = storage.Save(name, []byte("image bytes"))
		})

		When("the name is a plain file name", func() {
			It("should write the document to the upload directory", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(savedName).To(Equal(name))
				Expect(filepath.Join(tmpDir, "uploads", name)).To(BeAnExistingFile())
			})
		})

		When("the name tries to leave the upload directory", func() {
			BeforeEach(func() {
				name = "../escape.jpg"
			})

			It("should reject it", func() {
				Expect(err).To(MatchError(ContainSubstring("invalid document name")))
				Expect(filepath.Join(tmpDir, "escape.jpg")).NotTo(BeAnExistingFile())
			})
		})

		When("the name is empty", func() {
			BeforeEach(func() {
				name = ""
			})

			It("should reject it", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Get", func() {
		When("the document exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("doc.pdf", []byte("%PDF-1.7"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return its contents", func() {
				data, err := storage.Get("doc.pdf")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("%PDF-1.7"))
			})
		})

		When("the document does not exist", func() {
			It("should return a read error", func() {
				_, err := storage.Get("missing.pdf")
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})

		When("the name contains a directory", func() {
			It("should reject it", func() {
				_, err := storage.Get("sub/doc.pdf")
				Expect(err).To(MatchError(ContainSubstring("invalid document name")))
			})
		})
	})

	Describe("Delete", func() {
		When("the document exists", func() {
			BeforeEach(func() {
				_, err := storage.Save("doc.png", []byte("png"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("should remove it", func() {
				Expect(storage.Delete("doc.png")).To(Succeed())
				_, err := storage.Get("doc.png")
				Expect(err).To(HaveOccurred())
			})
		})

		When("the document does not exist", func() {
			It("should return a delete error", func() {
				Expect(storage.Delete("missing.png")).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("NewLocalStorage", func() {
		It("should create a missing directory", func() {
			path := filepath.Join(GinkgoT().TempDir(), "a", "b")
			_, err := NewLocalStorage(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(BeADirectory())
		})
	})
})
