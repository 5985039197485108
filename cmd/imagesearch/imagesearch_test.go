package imagesearchcmder_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	imagesearchcmder "github.com/totenbilder/imagesearch/cmd/imagesearch"
	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

const testConfig = `
[api]
api_key = "top-secret"

[vector_store]
provider = "memory"

[object_store]
endpoint = "https://r2.example.com"
access_key_id = "AKID"
secret_access_key = "s3cr3t"
bucket = "images"
public_base_url = "https://cdn.example.com"

[metadata]
provider = "postgres"
database_url = "postgres://app:pw@db:5432/app"
`

// execute runs the root command with args and returns its stdout.
func execute(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := imagesearchcmder.NewImageSearchCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var _ = Describe("NewImageSearchCmd", func() {
	It("registers every subcommand", func() {
		cmd := imagesearchcmder.NewImageSearchCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "index", "search", "payload", "config", "version"))
	})

	It("exposes the global flags", func() {
		cmd := imagesearchcmder.NewImageSearchCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("log-format")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("log-source")).NotTo(BeNil())
	})
})

var _ = Describe("Command execution", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(testConfig), 0o600)).To(Succeed())
	})

	Describe("config show", func() {
		It("prints the merged configuration with credentials masked", func() {
			out, err := execute("config", "show", "--config-dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`bucket = "images"`))
			Expect(out).To(ContainSubstring(`collection = "totenbilder"`))
			Expect(out).NotTo(ContainSubstring("top-secret"))
			Expect(out).NotTo(ContainSubstring("s3cr3t"))
			Expect(out).To(ContainSubstring("postgres://app:"))
			Expect(out).NotTo(ContainSubstring(":pw@"))
		})

		It("prints credentials with --reveal", func() {
			out, err := execute("config", "show", "--reveal", "--config-dir", dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("top-secret"))
		})
	})

	Describe("config init", func() {
		It("writes a default config.toml", func() {
			target := filepath.Join(GinkgoT().TempDir(), "fresh")
			out, err := execute("config", "init", "--config-dir", target)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("config.toml"))

			data, err := os.ReadFile(filepath.Join(target, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("[vector_store]"))
			Expect(string(data)).To(ContainSubstring(`listen = ":8000"`))
		})

		It("keeps an existing file unless --overwrite is set", func() {
			_, err := execute("config", "init", "--config-dir", dir)
			Expect(err).To(MatchError(ContainSubstring("already exists")))

			_, err = execute("config", "init", "--overwrite", "--config-dir", dir)
			Expect(err).NotTo(HaveOccurred())
			data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).NotTo(ContainSubstring("top-secret"))
		})
	})

	Describe("serve", func() {
		It("refuses to start with an incomplete configuration", func() {
			empty := GinkgoT().TempDir()
			_, err := execute("serve", "--config-dir", empty)
			Expect(err).To(MatchError(errdefs.ErrConfig))
			Expect(err.Error()).To(ContainSubstring("object_store.bucket is required"))
		})
	})

	Describe("index", func() {
		It("rejects --force together with --key", func() {
			_, err := execute("index", "--force", "--key", "a.jpg", "--config-dir", dir)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("payload sync", func() {
		It("requires --filename or --all", func() {
			_, err := execute("payload", "sync", "--config-dir", dir)
			Expect(err).To(MatchError(ContainSubstring("at least one of the flags")))
		})

		It("rejects --filename together with --all", func() {
			_, err := execute("payload", "sync", "--all", "--filename", "a.jpg", "--config-dir", dir)
			Expect(err).To(MatchError(ContainSubstring("none of the others can be")))
		})
	})

	Describe("payload missing", func() {
		It("needs the MySQL connection parts but not the bucket with --skip-bucket", func() {
			empty := GinkgoT().TempDir()
			_, err := execute("payload", "missing", "--skip-bucket", "--config-dir", empty)
			Expect(err).To(MatchError(errdefs.ErrConfig))
			Expect(err.Error()).To(ContainSubstring("metadata.host (or metadata.database_url) is required"))
			Expect(err.Error()).To(ContainSubstring("metadata.user is required"))
			Expect(err.Error()).NotTo(ContainSubstring("object_store.bucket"))
		})

		It("needs the bucket without --skip-bucket", func() {
			empty := GinkgoT().TempDir()
			_, err := execute("payload", "missing", "--config-dir", empty)
			Expect(err).To(MatchError(errdefs.ErrConfig))
			Expect(err.Error()).To(ContainSubstring("object_store.bucket is required"))
		})
	})

	Describe("search", func() {
		It("reports a missing reference image", func() {
			_, err := execute("search", "--similar", "totenbilder/missing.jpg", "--config-dir", dir)
			Expect(err).To(MatchError(errdefs.ErrNotFound))
		})

		It("rejects a query together with --similar", func() {
			_, err := execute("search", "engel", "--similar", "totenbilder/a.jpg", "--config-dir", dir)
			Expect(err).To(MatchError(errdefs.ErrValidation))
		})

		It("rejects an unknown log format", func() {
			_, err := execute("search", "--similar", "x.jpg", "--log-format", "xml", "--config-dir", dir)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("version", func() {
		It("prints the version", func() {
			out, err := execute("version", "--short")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).NotTo(BeEmpty())
		})
	})
})
