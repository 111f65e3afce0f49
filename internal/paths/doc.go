// Provides standard filesystem paths and permission modes for kiln.
package paths
