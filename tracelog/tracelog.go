/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package tracelog is the lifecycle logger for this module: coarse,
// rare events only (drain start/stop, writer I/O failures, registry
// setup failures), in the same register concurrency/gopool uses for
// its own panic-recovery log line. Nothing on the producer hot path
// calls into this package — logging there would itself become the
// bottleneck the rest of this module exists to avoid.
package tracelog

import "log"

// Infof logs a lifecycle event, e.g. drain start/stop.
func Infof(format string, args ...interface{}) {
	log.Printf("TRACER: "+format, args...)
}

// Warnf logs a recoverable problem the module continued past, e.g. a
// single thread's ATF writer failing to finalize.
func Warnf(format string, args ...interface{}) {
	log.Printf("TRACER WARN: "+format, args...)
}

// Errorf logs a failure that degraded a whole session, e.g. shared
// memory setup failing.
func Errorf(format string, args ...interface{}) {
	log.Printf("TRACER ERROR: "+format, args...)
}
