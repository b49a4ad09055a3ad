// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	UserAgent = fmt.Sprintf("metabus/%s", Version)
)

// BrowserUserAgent is sent on origin-site requests instead of UserAgent so
// scrape traffic blends in with ordinary browser traffic.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
