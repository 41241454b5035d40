/*
Package workers advises on pool sizes in containerized environments.

Resource pools call Advise whenever they are initialized or grown. Sizes
above SoftLimit are logged as likely oversubscription but never refused;
the configured thread counts are the operator's call.

SoftLimit is derived from runtime.GOMAXPROCS rather than runtime.NumCPU, so
a container limited to 2 CPUs on a 64-core host gets 4, not 128. Set
DEDUP_WORKERS to a positive integer to state the limit explicitly.
*/
package workers
