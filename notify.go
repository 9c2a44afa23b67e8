// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package coiled

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grailbio/base/log"
)

// A Notifier receives a human readable notification for every
// recorded benchmark. Notifications are purely observational.
type Notifier interface {
	Notify(label string, d time.Duration)
}

// NotificationLine returns the notification text for a recorded
// benchmark.
func NotificationLine(label string, d time.Duration) string {
	return fmt.Sprintf("%s took: %v seconds", label, d.Seconds())
}

// LogNotifier emits notifications through the grailbio log package.
// It is the default notifier.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(label string, d time.Duration) {
	log.Printf("%s", NotificationLine(label, d))
}

// WriterNotifier writes one notification line per record to the
// underlying writer. Write errors are ignored.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier returns a notifier that writes to w.
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Notify implements Notifier.
func (n *WriterNotifier) Notify(label string, d time.Duration) {
	n.mu.Lock()
	fmt.Fprintln(n.w, NotificationLine(label, d))
	n.mu.Unlock()
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(string, time.Duration) {}
