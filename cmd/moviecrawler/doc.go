// Command moviecrawler scrapes the movie listing pages, looks up a plot for
// every title, and writes the joined dataset (movieData.csv by default).
//
// Usage:
//
//	moviecrawler [-config path/to/config.yaml]
//
// Every config key can be overridden from the environment with the
// MOVIECRAWLER_ prefix, e.g. MOVIECRAWLER_OUTPUT_PATH=/tmp/movies.csv.
package main
