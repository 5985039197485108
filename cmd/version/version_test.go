package versioncmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/totenbilder/imagesearch/cmd/version"
	"github.com/totenbilder/imagesearch/pkg/utils"
)

var _ = Describe("NewVersionCmd", func() {
	It("prints version, sha and build time", func() {
		var out bytes.Buffer
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())

		Expect(out.String()).To(ContainSubstring("Version: " + utils.Version))
		Expect(out.String()).To(ContainSubstring("Sha: " + utils.Sha))
		Expect(out.String()).To(ContainSubstring("Go: go"))
	})

	It("prints only the version with --short", func() {
		var out bytes.Buffer
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--short"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal(utils.Version + "\n"))
	})
})
