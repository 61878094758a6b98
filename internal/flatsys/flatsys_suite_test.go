package flatsys_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFlatsys(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Flatsys Suite")
}
