// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package goswim

import (
	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger = nil
)

const MaxLogLevel = logrus.TraceLevel

func init() {
	logger = logrus.New()
}

// SetLogger replaces the library wide logger, e.g. to share the formatter and
// level of the calling program.
func SetLogger(loggerInstance *logrus.Logger) {

	logger = loggerInstance
}
