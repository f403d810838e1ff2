// Command urlcollector runs the crawl service: the worker pool draining the
// persistent frontier plus the HTTP surface for stats and pool control.
package main
