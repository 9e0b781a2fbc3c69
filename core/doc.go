/* Copyright 2024 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package core provides the action model and its executor.
//
// An Action is one declarative step from a bot document: a kind tag, a
// bag of kind-specific fields, an optional "when" condition, and an
// optional error-handler flow.  A Registry maps kinds to Handlers.  An
// Executor runs one action, an ordered sequence, a parallel group, or
// a batch over a collection, turning every handler outcome (including
// panics) into an ActionResult.
//
// Handlers receive their capabilities explicitly through Deps rather
// than digging them out of the context: the ActionContext stays pure
// data, so what a handler can touch is visible at its call site.
//
// Executor errors come in two flavors.  Runtime failures (a handler
// returned an error, validation rejected the action, the condition
// machinery choked) become failed ActionResults and never escape as
// Go errors.  Usage errors (too many actions for a sequence, too many
// for a parallel group) return synchronously, because they mean the
// document is wrong, not that the world misbehaved.
package core
