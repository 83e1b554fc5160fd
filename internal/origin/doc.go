// Package origin talks to the page renderer behind the site: fetching pages
// for the page cache and forwarding invalidations to the renderer's own
// revalidation endpoint.
package origin
