// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package jobcontroller is the arbitration point between the lock
// service, the run store, the log store, and the external config-server/
// tester-cloud/artifact-store collaborators. It owns the public contract
// (Start, Finish, Abort, AbortAndWait, Update*, Deploy, Submit,
// CollectGarbage, and the read-only query methods) and the history
// retention policy applied after every Finish.
//
// Controller behaves as a process-wide singleton: one value, constructed
// once at startup via New, whose lifetime spans the process. The RunStep
// callback that drives step execution forward is a write-once slot set by
// the bootstrap with SetRunStep; every state-mutating operation invokes it
// after committing its own change.
package jobcontroller
