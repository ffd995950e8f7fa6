// Package textutil provides naming helpers shared by clip assembly and the
// storage coordinator: ASCII slugs for file names and archive keys, and
// title casing for clip, folder and playlist titles.
package textutil
