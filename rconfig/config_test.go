/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package rconfig_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/rconfig"
)

var _ = Describe("Config", func() {
	Describe("Validate", func() {
		It("rejects a config missing required fields", func() {
			cfg := rconfig.Default()
			Expect(cfg.Validate()).To(HaveOccurred())
		})

		It("accepts a fully populated config", func() {
			cfg := rconfig.Default()
			cfg.Name = "reactord"
			cfg.Listen = "0.0.0.0:8080"
			Expect(cfg.Validate()).ToNot(HaveOccurred())
		})

		It("rejects a listen address without a port", func() {
			cfg := rconfig.Default()
			cfg.Name = "reactord"
			cfg.Listen = "0.0.0.0"
			Expect(cfg.Validate()).To(HaveOccurred())
		})
	})

	Describe("Load", func() {
		It("loads values from a YAML file and fills in defaults", func() {
			dir := GinkgoT().TempDir()
			path := filepath.Join(dir, "reactord.yaml")
			Expect(os.WriteFile(path, []byte("name: reactord\nlisten: 127.0.0.1:9090\n"), 0o600)).To(Succeed())

			cfg, err := rconfig.Load(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Name).To(Equal("reactord"))
			Expect(cfg.Listen).To(Equal("127.0.0.1:9090"))
			Expect(cfg.LogLevel).To(Equal("Info"))
		})

		It("returns an error for a missing file", func() {
			_, err := rconfig.Load(filepath.Join(GinkgoT().TempDir(), "missing.yaml"))
			Expect(err).To(HaveOccurred())
		})
	})
})
