// Package revalidate turns CMS change notifications into cache invalidations.
//
// A webhook body is authenticated with [Verify], decoded into a [Payload],
// mapped to stale paths and tags with [PathsFor] and [TagsFor], and handed to
// an [Invalidator] by the [Gateway]. Each path and tag is invalidated on its
// own: one failure is logged and left out of the result while the rest still
// go through.
package revalidate
