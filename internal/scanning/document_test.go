package scanning

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingReader records how many bytes were pulled from the underlying reader
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

var _ = Describe("ValidateDocument", func() {
	var (
		input  io.Reader
		result ValidationResult
	)

	JustBeforeEach(func() {
		result = ValidateDocument(input)
	})

	When("the content starts with the PDF signature", func() {
		BeforeEach(func() {
			input = bytes.NewReader([]byte("%PDF-1.7\nrest of the file"))
		})

		It("should be valid", func() {
			Expect(result.Valid).To(BeTrue())
		})

		It("should not give a reason", func() {
			Expect(result.Reason).To(BeEmpty())
		})
	})

	When("the content is exactly the signature", func() {
		BeforeEach(func() {
			input = bytes.NewReader([]byte("%PDF"))
		})

		It("should be valid", func() {
			Expect(result.Valid).To(BeTrue())
		})
	})

	When("the content starts with other bytes", func() {
		BeforeEach(func() {
			input = bytes.NewReader([]byte("\x89PNG\r\n\x1a\n"))
		})

		It("should be invalid", func() {
			Expect(result.Valid).To(BeFalse())
		})

		It("should give a reason", func() {
			Expect(result.Reason).To(Equal("not a valid PDF document"))
		})
	})

	When("the signature differs only in case", func() {
		BeforeEach(func() {
			input = bytes.NewReader([]byte("%pdf-1.4"))
		})

		It("should be invalid", func() {
			Expect(result.Valid).To(BeFalse())
		})
	})

	When("the content is shorter than the signature", func() {
		BeforeEach(func() {
			input = bytes.NewReader([]byte("%P"))
		})

		It("should be invalid with a reason", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Reason).NotTo(BeEmpty())
		})
	})

	When("the content is empty", func() {
		BeforeEach(func() {
			input = bytes.NewReader(nil)
		})

		It("should be invalid with a reason", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Reason).NotTo(BeEmpty())
		})
	})

	When("reading fails", func() {
		BeforeEach(func() {
			input = failingReader{}
		})

		It("should be invalid", func() {
			Expect(result.Valid).To(BeFalse())
		})

		It("should report the read error as the reason", func() {
			Expect(result.Reason).To(ContainSubstring("disk on fire"))
		})
	})

	Describe("read size", func() {
		var counter *countingReader

		When("validating a large file that does not match", func() {
			BeforeEach(func() {
				counter = &countingReader{r: bytes.NewReader(bytes.Repeat([]byte("x"), 10<<20))}
				input = counter
			})

			It("should stop after the signature bytes", func() {
				Expect(result.Valid).To(BeFalse())
				Expect(counter.read).To(Equal(4))
			})
		})

		When("validating a large file that matches", func() {
			BeforeEach(func() {
				content := append([]byte("%PDF"), bytes.Repeat([]byte("x"), 10<<20)...)
				counter = &countingReader{r: bytes.NewReader(content)}
				input = counter
			})

			It("should stop after the signature bytes", func() {
				Expect(result.Valid).To(BeTrue())
				Expect(counter.read).To(Equal(4))
			})
		})
	})
})

var _ = Describe("ValidateFile", func() {
	var (
		path   string
		result ValidationResult
	)

	JustBeforeEach(func() {
		result = ValidateFile(path)
	})

	When("the file is a PDF", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "receipt.pdf")
			Expect(os.WriteFile(path, minimalPDF(), 0644)).To(Succeed())
		})

		It("should be valid", func() {
			Expect(result.Valid).To(BeTrue())
		})
	})

	When("the file is not a PDF", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "receipt.pdf")
			Expect(os.WriteFile(path, []byte("just some text"), 0644)).To(Succeed())
		})

		It("should be invalid", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Reason).To(Equal("not a valid PDF document"))
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "missing.pdf")
		})

		It("should be invalid instead of failing", func() {
			Expect(result.Valid).To(BeFalse())
			Expect(result.Reason).To(ContainSubstring("unreadable document"))
		})
	})
})
